package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gortm/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database    DatabaseConfig
	AI          AIConfig
	Classifier  ClassifierConfig
	Extraction  ExtractionConfig
	Identifiers IdentifierConfig
	Server      ServerConfig
	Paths       PathConfig
	LogLevel    string
}

// DatabaseConfig holds database connection settings. An empty URL selects the in-memory run store.
type DatabaseConfig struct {
	URL string
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// AIConfig holds settings for the text-generation service
type AIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	Temperature       float64
	RequestsPerMinute float64
	PromptsDir        string
}

// Enabled reports whether the AI classifier can be used
func (a AIConfig) Enabled() bool {
	return a.APIKey != ""
}

// ClassifierConfig holds batching, retry and concurrency settings for the AI classifier
type ClassifierConfig struct {
	BatchCharBudget    int
	MaxBatchSize       int
	RetryLimit         int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	AttemptTimeout     time.Duration
	MaxConcurrency     int
	FallbackConfidence float64
}

// ExtractionConfig holds requirement extraction settings
type ExtractionConfig struct {
	FocusSheet     string
	MinSubstance   int
	RoleThreshold  float64
	HeaderScanRows int
	RulesFile      string
}

// IdentifierConfig holds identifier formatting settings
type IdentifierConfig struct {
	RequirementPrefix string
	TestCasePrefix    string
	Width             int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// PathConfig holds file system paths and upload limits
type PathConfig struct {
	UploadDir      string
	OutputDir      string
	MaxUploadBytes int64
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database:    loadDatabaseConfig(),
		AI:          loadAIConfig(),
		Classifier:  loadClassifierConfig(),
		Extraction:  loadExtractionConfig(),
		Identifiers: loadIdentifierConfig(),
		Server:      loadServerConfig(),
		Paths:       loadPathConfig(),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	return &Config{
		AI: AIConfig{
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "llama-3.1-8b-instant",
			MaxTokens:         8000,
			Temperature:       0.1,
			RequestsPerMinute: 35,
		},
		Classifier: ClassifierConfig{
			BatchCharBudget:    12000,
			MaxBatchSize:       25,
			RetryLimit:         3,
			BackoffBase:        time.Second,
			BackoffMax:         30 * time.Second,
			AttemptTimeout:     60 * time.Second,
			MaxConcurrency:     3,
			FallbackConfidence: 0.3,
		},
		Extraction: ExtractionConfig{
			FocusSheet:     "2- tool Requirements",
			MinSubstance:   10,
			RoleThreshold:  0.5,
			HeaderScanRows: 5,
		},
		Identifiers: IdentifierConfig{
			RequirementPrefix: "REQ",
			TestCasePrefix:    "TC",
			Width:             3,
		},
		Server: ServerConfig{Port: "8000"},
		Paths: PathConfig{
			UploadDir:      "uploads",
			OutputDir:      "outputs",
			MaxUploadBytes: 10 * 1024 * 1024,
		},
		LogLevel: "INFO",
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{URL: os.Getenv("DATABASE_URL")}
}

func loadAIConfig() AIConfig {
	d := Default().AI
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return AIConfig{
		APIKey:            apiKey,
		BaseURL:           getEnvOrDefault("AI_BASE_URL", d.BaseURL),
		Model:             getEnvOrDefault("LLM_MODEL", d.Model),
		MaxTokens:         getEnvIntOrDefault("AI_MAX_TOKENS", d.MaxTokens),
		Temperature:       getEnvFloatOrDefault("AI_TEMPERATURE", d.Temperature),
		RequestsPerMinute: getEnvFloatOrDefault("REQUESTS_PER_MINUTE", d.RequestsPerMinute),
		PromptsDir:        os.Getenv("PROMPTS_DIR"),
	}
}

func loadClassifierConfig() ClassifierConfig {
	d := Default().Classifier
	return ClassifierConfig{
		BatchCharBudget:    getEnvIntOrDefault("BATCH_CHAR_BUDGET", d.BatchCharBudget),
		MaxBatchSize:       getEnvIntOrDefault("MAX_BATCH_SIZE", d.MaxBatchSize),
		RetryLimit:         getEnvIntOrDefault("RETRY_LIMIT", d.RetryLimit),
		BackoffBase:        getEnvDurationOrDefault("BACKOFF_BASE", d.BackoffBase),
		BackoffMax:         getEnvDurationOrDefault("BACKOFF_MAX", d.BackoffMax),
		AttemptTimeout:     getEnvDurationOrDefault("ATTEMPT_TIMEOUT", d.AttemptTimeout),
		MaxConcurrency:     getEnvIntOrDefault("MAX_CONCURRENCY", d.MaxConcurrency),
		FallbackConfidence: getEnvFloatOrDefault("FALLBACK_CONFIDENCE", d.FallbackConfidence),
	}
}

func loadExtractionConfig() ExtractionConfig {
	d := Default().Extraction
	return ExtractionConfig{
		FocusSheet:     getEnvOrDefault("FOCUS_SHEET_NAME", d.FocusSheet),
		MinSubstance:   getEnvIntOrDefault("MIN_SUBSTANCE", d.MinSubstance),
		RoleThreshold:  getEnvFloatOrDefault("ROLE_THRESHOLD", d.RoleThreshold),
		HeaderScanRows: getEnvIntOrDefault("HEADER_SCAN_ROWS", d.HeaderScanRows),
		RulesFile:      os.Getenv("RULES_FILE"),
	}
}

func loadIdentifierConfig() IdentifierConfig {
	d := Default().Identifiers
	return IdentifierConfig{
		RequirementPrefix: getEnvOrDefault("REQUIREMENT_ID_PREFIX", d.RequirementPrefix),
		TestCasePrefix:    getEnvOrDefault("TEST_CASE_ID_PREFIX", d.TestCasePrefix),
		Width:             getEnvIntOrDefault("ID_WIDTH", d.Width),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port: getEnvOrDefault("PORT", Default().Server.Port),
	}
}

func loadPathConfig() PathConfig {
	d := Default().Paths
	return PathConfig{
		UploadDir:      getEnvOrDefault("UPLOAD_DIR", d.UploadDir),
		OutputDir:      getEnvOrDefault("OUTPUT_DIR", d.OutputDir),
		MaxUploadBytes: int64(getEnvIntOrDefault("MAX_UPLOAD_BYTES", int(d.MaxUploadBytes))),
	}
}

// Validate checks a configuration built in code, such as by the CLI
func Validate(config *Config) error {
	return validateConfig(config)
}

func validateConfig(config *Config) error {
	c := config.Classifier
	if c.BatchCharBudget <= 0 {
		return errors.ConfigInvalid("BATCH_CHAR_BUDGET must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return errors.ConfigInvalid("MAX_BATCH_SIZE must be positive")
	}
	if c.RetryLimit < 0 {
		return errors.ConfigInvalid("RETRY_LIMIT cannot be negative")
	}
	if c.MaxConcurrency <= 0 {
		return errors.ConfigInvalid("MAX_CONCURRENCY must be positive")
	}
	if c.AttemptTimeout <= 0 {
		return errors.ConfigInvalid("ATTEMPT_TIMEOUT must be positive")
	}
	if c.FallbackConfidence < 0 || c.FallbackConfidence > 0.5 {
		return errors.ConfigInvalid("FALLBACK_CONFIDENCE must be between 0 and 0.5")
	}

	e := config.Extraction
	if e.MinSubstance < 1 {
		return errors.ConfigInvalid("MIN_SUBSTANCE must be at least 1")
	}
	if e.RoleThreshold <= 0 || e.RoleThreshold > 1 {
		return errors.ConfigInvalid("ROLE_THRESHOLD must be in (0, 1]")
	}
	if e.HeaderScanRows < 1 {
		return errors.ConfigInvalid("HEADER_SCAN_ROWS must be at least 1")
	}

	id := config.Identifiers
	if strings.TrimSpace(id.RequirementPrefix) == "" || strings.TrimSpace(id.TestCasePrefix) == "" {
		return errors.ConfigInvalid("identifier prefixes are required")
	}
	if id.Width < 1 {
		return errors.ConfigInvalid("ID_WIDTH must be at least 1")
	}

	if config.AI.Enabled() && config.AI.RequestsPerMinute <= 0 {
		return errors.ConfigInvalid("REQUESTS_PER_MINUTE must be positive")
	}
	if config.Paths.MaxUploadBytes <= 0 {
		return errors.ConfigInvalid("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
