package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBuiltinPrompt(t *testing.T) {
	pm := NewPromptManager("")

	prompt, err := pm.RenderPrompt(PromptClassifyRequirements, map[string]string{
		"FILE_NAME":         "reqs.xlsx",
		"SHEET_NAMES":       "A, B",
		"FOCUS_SHEET":       "A",
		"BATCH_NUMBER":      "1",
		"BATCH_COUNT":       "2",
		"BATCH_SIZE":        "3",
		"TOTAL_COUNT":       "5",
		"REQUIREMENTS_JSON": `[{"text": "Use {FILE_NAME} literally"}]`,
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Source file: reqs.xlsx")
	assert.Contains(t, prompt, "Batch: 1 of 2 (3 of 5 requirements)")
	// placeholders inside substituted values are not expanded again
	assert.Contains(t, prompt, "Use {FILE_NAME} literally")
	assert.NotContains(t, prompt, "{REQUIREMENTS_JSON}")
}

func TestPromptDirectoryOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PromptClassifyRequirements+".txt"), []byte("Custom {FILE_NAME}"), 0644))

	prompt, err := NewPromptManager(dir).RenderPrompt(PromptClassifyRequirements, map[string]string{"FILE_NAME": "x.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "Custom x.xlsx", prompt)

	// templates missing from the directory fall back to the built-in set
	_, err = NewPromptManager(t.TempDir()).LoadPrompt(PromptClassifyRequirements)
	require.NoError(t, err)
}

func TestLoadUnknownPrompt(t *testing.T) {
	_, err := NewPromptManager("").LoadPrompt("does_not_exist")
	assert.Error(t, err)
}
