package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gortm/ai"
	"gortm/domain/requirement"
	"gortm/internal"
	"gortm/internal/errors"
	"gortm/ports"

	"golang.org/x/sync/errgroup"
)

const classifierSystemPrompt = "You are an expert requirements analyst. Respond with JSON only."

// ClassifierConfig holds configuration for the AI classifier
type ClassifierConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	PromptsDir  string

	BatchCharBudget int
	MaxBatchSize    int

	RetryLimit     int // retries after the first attempt
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	AttemptTimeout time.Duration
	MaxConcurrency int

	FallbackConfidence float64
}

// DefaultClassifierConfig returns the standard batching and retry policy
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Model:              "llama-3.1-8b-instant",
		MaxTokens:          8000,
		Temperature:        0.1,
		BatchCharBudget:    12000,
		MaxBatchSize:       25,
		RetryLimit:         3,
		BackoffBase:        time.Second,
		BackoffMax:         30 * time.Second,
		AttemptTimeout:     60 * time.Second,
		MaxConcurrency:     3,
		FallbackConfidence: 0.3,
	}
}

// batch is a contiguous slice [start, end) of the classifier input
type batch struct {
	index int
	start int
	end   int
}

// AIClassifier classifies requirements with a chat completion model. Batches
// that exhaust their retries are classified by the fallback classifier.
type AIClassifier struct {
	client   ports.LLMClient
	fallback ports.Classifier
	config   ClassifierConfig
	prompts  *ai.PromptManager
	logger   *internal.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewAIClassifier composes an LLM client with a fallback classifier
func NewAIClassifier(client ports.LLMClient, fallback ports.Classifier, config ClassifierConfig) (*AIClassifier, error) {
	if client == nil {
		return nil, errors.ConfigInvalid("AI classifier requires an LLM client")
	}
	if fallback == nil {
		return nil, errors.ConfigInvalid("AI classifier requires a fallback classifier")
	}
	defaults := DefaultClassifierConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.BatchCharBudget <= 0 {
		config.BatchCharBudget = defaults.BatchCharBudget
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.RetryLimit < 0 {
		config.RetryLimit = 0
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.FallbackConfidence < 0 || config.FallbackConfidence > 0.5 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("fallback confidence %v outside [0, 0.5]", config.FallbackConfidence))
	}

	return &AIClassifier{
		client:   client,
		fallback: fallback,
		config:   config,
		prompts:  ai.NewPromptManager(config.PromptsDir),
		logger:   internal.DefaultLogger.With("AIClassifier"),
		sleep:    sleepContext,
	}, nil
}

// Name identifies the classifier in run records
func (c *AIClassifier) Name() string {
	return "ai:" + c.config.Model
}

// ClassifyBatch classifies texts in bounded batches, at most MaxConcurrency
// in flight. The output has the same length and order as texts. Cancelling
// ctx aborts every batch and yields OPERATION_CANCELLED with no output.
func (c *AIClassifier) ClassifyBatch(ctx context.Context, texts []string, cctx ports.ClassifyContext) ([]requirement.Enrichment, error) {
	if len(texts) == 0 {
		return []requirement.Enrichment{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.OperationCancelled(err)
	}
	if cctx.TotalCount == 0 {
		cctx.TotalCount = len(texts)
	}

	batches := planBatches(texts, c.config.BatchCharBudget, c.config.MaxBatchSize)
	c.logger.Info("Classifying %d requirements in %d batches (model %s, concurrency %d)",
		len(texts), len(batches), c.config.Model, c.config.MaxConcurrency)

	for _, b := range batches {
		c.notify(cctx, ports.BatchEvent{Batch: b.index, Batches: len(batches), Size: b.end - b.start, State: ports.BatchPending})
	}

	results := make([]requirement.Enrichment, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxConcurrency)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			enrichments, err := c.classifyBatch(gctx, b, len(batches), texts[b.start:b.end], cctx)
			if err != nil {
				return err
			}
			copy(results[b.start:b.end], enrichments)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.OperationCancelled(ctxErr)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.OperationCancelled(err)
	}
	return results, nil
}

// classifyBatch runs the retry loop for one batch and applies the fallback
// when every attempt failed
func (c *AIClassifier) classifyBatch(ctx context.Context, b batch, batches int, texts []string, cctx ports.ClassifyContext) ([]requirement.Enrichment, error) {
	prompt, err := c.renderPrompt(b, batches, texts, cctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render classification prompt")
	}

	event := ports.BatchEvent{Batch: b.index, Batches: batches, Size: len(texts)}
	attempts := c.config.RetryLimit + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.OperationCancelled(err)
		}

		event.Attempt = attempt
		event.State, event.Err, event.Usage = ports.BatchSent, nil, nil
		c.notify(cctx, event)

		enrichments, usage, err := c.attempt(ctx, prompt, texts)
		if err == nil {
			event.State, event.Usage = ports.BatchSucceeded, usage
			c.notify(cctx, event)
			c.logger.Debug("Batch %d/%d classified on attempt %d", b.index+1, batches, attempt)
			return enrichments, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.OperationCancelled(ctxErr)
		}

		lastErr = err
		event.State, event.Err, event.Usage = ports.BatchFailed, err, usage
		c.notify(cctx, event)
		c.logger.Warn("Batch %d/%d attempt %d/%d failed: %v", b.index+1, batches, attempt, attempts, err)

		if attempt < attempts {
			if err := c.sleep(ctx, c.backoff(attempt, err)); err != nil {
				return nil, errors.OperationCancelled(err)
			}
		}
	}

	failure := errors.ClassifierBatchFailure(b.index+1, attempts, lastErr)
	c.logger.Warn("%s [%s]; applying %s fallback", failure.Error(), failure.Code, c.fallback.Name())

	fallbackCtx := cctx
	fallbackCtx.Observer = nil
	fallbackCtx.Sources = nil
	if len(cctx.Sources) >= b.end {
		fallbackCtx.Sources = cctx.Sources[b.start:b.end]
	}
	enrichments, err := c.fallback.ClassifyBatch(ctx, texts, fallbackCtx)
	if err != nil {
		return nil, errors.Wrapf(err, "fallback classification of batch %d failed", b.index+1)
	}
	if len(enrichments) != len(texts) {
		return nil, errors.PipelineIntegrity("fallback returned %d enrichments for %d requirements", len(enrichments), len(texts))
	}
	for i := range enrichments {
		enrichments[i].Source = requirement.SourceFallback
		enrichments[i].Confidence = c.config.FallbackConfidence
	}

	event.State, event.Err, event.Usage = ports.BatchFallbackApplied, failure, nil
	c.notify(cctx, event)
	return enrichments, nil
}

// attempt sends one request bounded by the per-attempt timeout
func (c *AIClassifier) attempt(ctx context.Context, prompt string, texts []string) ([]requirement.Enrichment, *ports.UsageData, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.AttemptTimeout)
	defer cancel()

	resp, err := c.client.ChatCompletion(attemptCtx, ports.ChatRequest{
		Model:       c.config.Model,
		System:      classifierSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, nil, fmt.Errorf("attempt timed out after %s: %w", c.config.AttemptTimeout, err)
		}
		return nil, nil, err
	}

	enrichments, err := parseClassification(resp.Content, texts)
	if err != nil {
		return nil, resp.Usage, fmt.Errorf("invalid classification response: %w", err)
	}
	return enrichments, resp.Usage, nil
}

// backoff doubles from BackoffBase per attempt, capped at BackoffMax.
// Rate-limit responses start at five times the base and honor Retry-After.
func (c *AIClassifier) backoff(attempt int, err error) time.Duration {
	base := c.config.BackoffBase
	var rateErr *RateLimitError
	isRateLimit := stderrors.As(err, &rateErr)
	if isRateLimit {
		base *= 5
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.config.BackoffMax > 0 && delay >= c.config.BackoffMax {
			break
		}
	}
	if isRateLimit && rateErr.RetryAfter > delay {
		delay = rateErr.RetryAfter
	}
	if c.config.BackoffMax > 0 && delay > c.config.BackoffMax {
		delay = c.config.BackoffMax
	}
	return delay
}

func (c *AIClassifier) renderPrompt(b batch, batches int, texts []string, cctx ports.ClassifyContext) (string, error) {
	type item struct {
		Text   string `json:"text"`
		Source string `json:"source,omitempty"`
	}
	items := make([]item, len(texts))
	for i, text := range texts {
		items[i].Text = text
		if b.start+i < len(cctx.Sources) {
			items[i].Source = cctx.Sources[b.start+i]
		}
	}
	encoded, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}

	return c.prompts.RenderPrompt(ai.PromptClassifyRequirements, map[string]string{
		"FILE_NAME":         cctx.FileName,
		"SHEET_NAMES":       strings.Join(cctx.SheetNames, ", "),
		"FOCUS_SHEET":       cctx.FocusSheet,
		"BATCH_NUMBER":      strconv.Itoa(b.index + 1),
		"BATCH_COUNT":       strconv.Itoa(batches),
		"BATCH_SIZE":        strconv.Itoa(len(texts)),
		"TOTAL_COUNT":       strconv.Itoa(cctx.TotalCount),
		"REQUIREMENTS_JSON": string(encoded),
	})
}

func (c *AIClassifier) notify(cctx ports.ClassifyContext, event ports.BatchEvent) {
	if cctx.Observer != nil {
		cctx.Observer.OnBatchEvent(event)
	}
}

// planBatches splits texts into contiguous batches of at most maxSize texts
// and budget characters. A text larger than the budget forms its own batch.
func planBatches(texts []string, budget, maxSize int) []batch {
	var batches []batch
	start, chars := 0, 0
	for i, text := range texts {
		n := utf8.RuneCountInString(text)
		if i > start && (chars+n > budget || i-start >= maxSize) {
			batches = append(batches, batch{index: len(batches), start: start, end: i})
			start, chars = i, 0
		}
		chars += n
	}
	if start < len(texts) {
		batches = append(batches, batch{index: len(batches), start: start, end: len(texts)})
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
