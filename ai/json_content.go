package ai

import (
	"strings"

	"gortm/internal"
)

var jsonLogger = internal.DefaultLogger.With("JSONContent")

// CleanJSONContent removes markdown code fences and model chatter around a JSON document
func CleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	originalLength := len(content)

	// Remove markdown code blocks with various prefixes
	if strings.HasPrefix(content, "```json") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Drop chatter lines that precede the document
	lines := strings.Split(content, "\n")
	start := 0
	for start < len(lines) {
		line := strings.ToLower(strings.TrimSpace(lines[start]))
		if line == "" ||
			strings.HasPrefix(line, "here is") ||
			strings.HasPrefix(line, "the json") ||
			strings.HasPrefix(line, "output:") ||
			strings.HasPrefix(line, "response:") ||
			strings.HasPrefix(line, "##") ||
			strings.Contains(line, "below is") ||
			strings.Contains(line, "following is") {
			start++
			continue
		}
		break
	}
	content = strings.TrimSpace(strings.Join(lines[start:], "\n"))

	// Cut anything before the first bracket and after the matching last one
	if i := strings.IndexAny(content, "{["); i > 0 {
		content = content[i:]
	}
	if strings.HasPrefix(content, "{") {
		if j := strings.LastIndex(content, "}"); j >= 0 {
			content = content[:j+1]
		}
	} else if strings.HasPrefix(content, "[") {
		if j := strings.LastIndex(content, "]"); j >= 0 {
			content = content[:j+1]
		}
	}

	if len(content) != originalLength {
		jsonLogger.Trace("Content cleaning reduced size: %d -> %d bytes", originalLength, len(content))
	}
	return content
}
