package extraction

import (
	"strings"
	"unicode"

	"gortm/domain/requirement"
)

// Match strengths of a header against a synonym
const (
	scoreExact     = 1.0
	scorePhrase    = 0.75
	scoreSubstring = 0.5

	// shorter synonyms ("id", "no") only match as whole words
	minSubstringLength = 4
)

// candidate is a header claimed by a role
type candidate struct {
	header string
	column int // 1-based
	score  float64
}

// DetectRoles maps logical roles to headers using the synonym dictionary.
// Each header is claimed by the role it scores highest for; ties go to the
// earlier role in requirement.Roles. Per role the best claimed header at or
// above the threshold wins, and equal best scores leave the role ambiguous.
func (e *Extractor) DetectRoles(headers []string) requirement.ColumnRoleMap {
	roles, _ := e.detectRoles(headers)
	return roles
}

// detectRoles also returns the tied description candidates so extraction can
// break the tie by content
func (e *Extractor) detectRoles(headers []string) (requirement.ColumnRoleMap, []candidate) {
	result := requirement.ColumnRoleMap{
		Roles:  make(map[requirement.Role]string),
		Scores: make(map[requirement.Role]float64),
	}

	claimed := make(map[requirement.Role][]candidate)
	for i, header := range headers {
		bestRole, bestScore := requirement.Role(""), 0.0
		for _, role := range requirement.Roles {
			score := headerScore(header, e.rules.ColumnSynonyms[role])
			if score > bestScore {
				bestRole, bestScore = role, score
			}
		}
		if bestRole == "" || bestScore < e.config.RoleThreshold {
			continue
		}
		claimed[bestRole] = append(claimed[bestRole], candidate{header: header, column: i + 1, score: bestScore})
	}

	var descriptionTies []candidate
	for _, role := range requirement.Roles {
		cands := claimed[role]
		if len(cands) == 0 {
			continue
		}
		best := topCandidates(cands)
		result.Scores[role] = best[0].score
		if len(best) > 1 {
			result.Ambiguous = append(result.Ambiguous, role)
			if role == requirement.RoleDescription {
				descriptionTies = best
			}
			continue
		}
		result.Roles[role] = best[0].header
	}
	return result, descriptionTies
}

func topCandidates(cands []candidate) []candidate {
	top := 0.0
	for _, c := range cands {
		if c.score > top {
			top = c.score
		}
	}
	var best []candidate
	for _, c := range cands {
		if c.score == top {
			best = append(best, c)
		}
	}
	return best
}

// headerScore returns the best match of a header against any synonym
func headerScore(header string, synonyms []string) float64 {
	h := normalizeHeader(header)
	if h == "" {
		return 0
	}
	best := 0.0
	for _, syn := range synonyms {
		s := normalizeHeader(syn)
		if s == "" {
			continue
		}
		var score float64
		switch {
		case h == s:
			score = scoreExact
		case strings.Contains(" "+h+" ", " "+s+" "):
			score = scorePhrase
		case len(s) >= minSubstringLength && strings.Contains(h, s):
			score = scoreSubstring
		}
		if score > best {
			best = score
		}
	}
	return best
}

// normalizeHeader lowercases and reduces punctuation to single spaces.
// '#' is kept since it is a common identifier header.
func normalizeHeader(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '#' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
