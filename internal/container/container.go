package container

import (
	"context"
	"fmt"

	"gortm/adapters/excel"
	"gortm/adapters/llm"
	"gortm/adapters/llm/heuristic"
	"gortm/adapters/memory"
	"gortm/adapters/postgres"
	"gortm/app"
	"gortm/domain/rules"
	"gortm/internal"
	"gortm/internal/api"
	"gortm/internal/config"
	"gortm/internal/extraction"
	"gortm/internal/identifier"
	"gortm/internal/matrix"
	"gortm/internal/progress"
	"gortm/internal/storage"
	"gortm/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB      *sqlx.DB
	Storage *storage.FileStore

	// Repositories (data access layer)
	RunRepo ports.RunRepository

	// Pipeline components
	Rules      *rules.Set
	Reader     *excel.SheetReader
	Writer     *excel.MatrixWriter
	Extractor  *extraction.Extractor
	Classifier ports.Classifier
	Assigner   *identifier.Assigner
	Assembler  *matrix.Assembler

	// Progress reporting
	SSEHub  *api.SSEHub
	Tracker *progress.Tracker

	// Services
	RTMService *app.RTMService

	logger *internal.Logger
}

// New creates a new dependency injection container. Runs are kept in memory
// until InitWithDatabase swaps in the Postgres repository.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:  cfg,
		RunRepo: memory.NewRunRepository(),
		logger:  internal.DefaultLogger.With("Container"),
	}

	if err := c.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := c.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	c.SSEHub = api.NewSSEHub()
	c.Tracker = progress.NewTracker(c.SSEHub)

	if err := c.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	c.logger.Info("Container initialized (classifier %s)", c.Classifier.Name())
	return c, nil
}

// InitWithDatabase switches run records to PostgreSQL
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	// Test database connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.DB = db
	c.RunRepo = postgres.NewRunRepository(db)
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	c.logger.Info("Container initialized with database connection")
	return nil
}

func (c *Container) initStorage() error {
	store, err := storage.NewFileStore(storage.Config{
		UploadDir:      c.Config.Paths.UploadDir,
		OutputDir:      c.Config.Paths.OutputDir,
		MaxUploadBytes: c.Config.Paths.MaxUploadBytes,
	})
	if err != nil {
		return err
	}
	c.Storage = store
	return nil
}

// initPipeline builds the pipeline stages from configuration
func (c *Container) initPipeline() error {
	cfg := c.Config

	set, err := config.LoadRules(cfg.Extraction.RulesFile)
	if err != nil {
		return err
	}
	c.Rules = set

	c.Reader = excel.NewSheetReader(excel.ReaderConfig{HeaderScanRows: cfg.Extraction.HeaderScanRows})
	c.Writer = excel.NewMatrixWriter(excel.DefaultWriterConfig())
	c.Extractor = extraction.NewExtractor(extraction.Config{
		FocusSheet:    cfg.Extraction.FocusSheet,
		MinSubstance:  cfg.Extraction.MinSubstance,
		RoleThreshold: cfg.Extraction.RoleThreshold,
	}, set)

	c.Assigner, err = identifier.NewAssigner(identifier.Config{
		RequirementPrefix: cfg.Identifiers.RequirementPrefix,
		TestCasePrefix:    cfg.Identifiers.TestCasePrefix,
		Width:             cfg.Identifiers.Width,
	})
	if err != nil {
		return err
	}
	c.Assembler = matrix.NewAssembler()

	return c.initClassifier(set)
}

// initClassifier composes the AI classifier with the rule-based fallback,
// or uses the rule-based classifier alone when no API key is configured
func (c *Container) initClassifier(set *rules.Set) error {
	fallback := heuristic.NewClassifier(set)
	if !c.Config.AI.Enabled() {
		c.logger.Warn("No AI API key configured; using rule-based classification")
		c.Classifier = fallback
		return nil
	}

	client, err := llm.NewOpenAIClient(llm.ClientConfig{
		APIKey:            c.Config.AI.APIKey,
		BaseURL:           c.Config.AI.BaseURL,
		Provider:          "groq",
		RequestsPerMinute: c.Config.AI.RequestsPerMinute,
	})
	if err != nil {
		return err
	}

	cc := c.Config.Classifier
	classifier, err := llm.NewAIClassifier(client, fallback, llm.ClassifierConfig{
		Model:              c.Config.AI.Model,
		MaxTokens:          c.Config.AI.MaxTokens,
		Temperature:        c.Config.AI.Temperature,
		PromptsDir:         c.Config.AI.PromptsDir,
		BatchCharBudget:    cc.BatchCharBudget,
		MaxBatchSize:       cc.MaxBatchSize,
		RetryLimit:         cc.RetryLimit,
		BackoffBase:        cc.BackoffBase,
		BackoffMax:         cc.BackoffMax,
		AttemptTimeout:     cc.AttemptTimeout,
		MaxConcurrency:     cc.MaxConcurrency,
		FallbackConfidence: cc.FallbackConfidence,
	})
	if err != nil {
		return err
	}
	c.Classifier = classifier
	return nil
}

func (c *Container) initServices() error {
	service, err := app.NewRTMService(app.RTMServiceDeps{
		Reader:     c.Reader,
		Extractor:  c.Extractor,
		Classifier: c.Classifier,
		Assigner:   c.Assigner,
		Assembler:  c.Assembler,
		Writer:     c.Writer,
		Runs:       c.RunRepo,
		Tracker:    c.Tracker,
	})
	if err != nil {
		return err
	}
	c.RTMService = service
	return nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.SSEHub != nil {
		c.SSEHub.Stop()
	}

	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
