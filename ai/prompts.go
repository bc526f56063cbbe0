package ai

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gortm/internal"
)

// Prompt names
const (
	PromptClassifyRequirements = "classify_requirements"
)

//go:embed prompts/*.txt
var builtinPrompts embed.FS

// Global map to track initialized prompt directories (to avoid duplicate logs)
var (
	initializedDirs   = make(map[string]bool)
	initializedDirsMu sync.Mutex
)

// PromptManager loads prompt templates from a directory, falling back to the built-in templates
type PromptManager struct {
	PromptsDir string
	logger     *internal.Logger
}

// NewPromptManager creates a prompt manager. An empty directory uses only built-in templates.
func NewPromptManager(promptsDir string) *PromptManager {
	pm := &PromptManager{
		PromptsDir: promptsDir,
		logger:     internal.DefaultLogger.With("PromptManager"),
	}

	initializedDirsMu.Lock()
	if !initializedDirs[promptsDir] {
		initializedDirs[promptsDir] = true
		if promptsDir == "" {
			pm.logger.Debug("Using built-in prompt templates")
		} else {
			pm.logger.Info("Initialized for directory: %s", promptsDir)
		}
	}
	initializedDirsMu.Unlock()

	return pm
}

// LoadPrompt loads a prompt template by name
func (pm *PromptManager) LoadPrompt(name string) (string, error) {
	if pm.PromptsDir != "" {
		path := filepath.Join(pm.PromptsDir, name+".txt")
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
		}
	}

	content, err := builtinPrompts.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	return string(content), nil
}

// RenderPrompt replaces {PLACEHOLDER} with values in a single pass,
// so placeholders inside substituted values are left untouched
func (pm *PromptManager) RenderPrompt(name string, replacements map[string]string) (string, error) {
	template, err := pm.LoadPrompt(name)
	if err != nil {
		return "", err
	}

	pairs := make([]string, 0, len(replacements)*2)
	for placeholder, value := range replacements {
		pairs = append(pairs, "{"+placeholder+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}
