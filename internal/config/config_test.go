package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gortm/domain/requirement"
	"gortm/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "DATABASE_URL", "FOCUS_SHEET_NAME", "MAX_BATCH_SIZE", "RETRY_LIMIT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AI.Enabled())
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "2- tool Requirements", cfg.Extraction.FocusSheet)
	assert.Equal(t, 25, cfg.Classifier.MaxBatchSize)
	assert.Equal(t, 3, cfg.Classifier.RetryLimit)
	assert.Equal(t, "REQ", cfg.Identifiers.RequirementPrefix)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FOCUS_SHEET_NAME", "Backlog")
	t.Setenv("MAX_CONCURRENCY", "5")
	t.Setenv("BACKOFF_BASE", "250ms")
	t.Setenv("FALLBACK_CONFIDENCE", "0.2")
	t.Setenv("RETRY_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, "Backlog", cfg.Extraction.FocusSheet)
	assert.Equal(t, 5, cfg.Classifier.MaxConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Classifier.BackoffBase)
	assert.Equal(t, 0.2, cfg.Classifier.FallbackConfidence)
	assert.Equal(t, 3, cfg.Classifier.RetryLimit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"MAX_BATCH_SIZE":      "0",
		"RETRY_LIMIT":         "-1",
		"FALLBACK_CONFIDENCE": "0.9",
		"ROLE_THRESHOLD":      "1.5",
		"ID_WIDTH":            "0",
		"MAX_UPLOAD_BYTES":    "-5",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
		})
	}
}

func TestValidateDefault(t *testing.T) {
	require.NoError(t, Validate(Default()))

	cfg := Default()
	cfg.AI.APIKey = "key"
	cfg.AI.RequestsPerMinute = 0
	assert.True(t, errors.HasCode(Validate(cfg), errors.CodeConfigInvalid))
}

func TestLoadRulesDefault(t *testing.T) {
	set, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, requirement.TypeFunctional, set.DefaultType)
	assert.NotEmpty(t, set.TypeRules)
}

func TestLoadRulesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
column_synonyms:
  description: ["user story", "story"]
type_rules:
  - type: non functional
    keywords: ["sla"]
default_priority: medium
`), 0644))

	set, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"user story", "story"}, set.ColumnSynonyms[requirement.RoleDescription])
	assert.NotEmpty(t, set.ColumnSynonyms[requirement.RoleID])
	require.Len(t, set.TypeRules, 1)
	assert.Equal(t, requirement.TypeNonFunctional, set.TypeRules[0].Type)
	assert.Equal(t, requirement.PriorityMedium, set.DefaultPriority)
	assert.NotEmpty(t, set.PriorityRules)
}

func TestLoadRulesRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	tests := map[string]string{
		"unknown role":     write("role.yaml", "column_synonyms:\n  owner: [\"owner\"]\n"),
		"unknown type":     write("type.yaml", "type_rules:\n  - type: Operational\n    keywords: [\"ops\"]\n"),
		"unknown priority": write("priority.yaml", "default_priority: urgent\n"),
		"malformed":        write("bad.yaml", "type_rules: [\n"),
		"missing":          filepath.Join(dir, "missing.yaml"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRules(path)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
		})
	}
}
