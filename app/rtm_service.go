package app

import (
	"context"
	"os"
	"sync"
	"time"

	"gortm/domain/requirement"
	"gortm/domain/run"
	"gortm/internal"
	"gortm/internal/errors"
	"gortm/internal/extraction"
	"gortm/internal/identifier"
	"gortm/internal/matrix"
	"gortm/internal/progress"
	"gortm/ports"

	"github.com/google/uuid"
)

// RTMService runs the traceability pipeline: read, extract, classify,
// assign identifiers, assemble and optionally write the matrix
type RTMService struct {
	reader     ports.WorkbookReader
	extractor  *extraction.Extractor
	classifier ports.Classifier
	assigner   *identifier.Assigner
	assembler  *matrix.Assembler
	writer     ports.MatrixWriter
	runs       ports.RunRepository
	tracker    *progress.Tracker

	newID  func() string
	clock  func() time.Time
	logger *internal.Logger
}

// RTMServiceDeps are the collaborators of the service. Runs and Tracker are optional.
type RTMServiceDeps struct {
	Reader     ports.WorkbookReader
	Extractor  *extraction.Extractor
	Classifier ports.Classifier
	Assigner   *identifier.Assigner
	Assembler  *matrix.Assembler
	Writer     ports.MatrixWriter
	Runs       ports.RunRepository
	Tracker    *progress.Tracker
}

// NewRTMService creates the pipeline service
func NewRTMService(deps RTMServiceDeps) (*RTMService, error) {
	if deps.Reader == nil || deps.Extractor == nil || deps.Classifier == nil ||
		deps.Assigner == nil || deps.Assembler == nil || deps.Writer == nil {
		return nil, errors.ConfigInvalid("RTM service requires reader, extractor, classifier, assigner, assembler and writer")
	}
	return &RTMService{
		reader:     deps.Reader,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		assigner:   deps.Assigner,
		assembler:  deps.Assembler,
		writer:     deps.Writer,
		runs:       deps.Runs,
		tracker:    deps.Tracker,
		newID:      func() string { return uuid.New().String() },
		clock:      time.Now,
		logger:     internal.DefaultLogger.With("RTMService"),
	}, nil
}

// ProcessRequest is one workbook submission
type ProcessRequest struct {
	RunID            string // generated when empty
	FileID           string
	FileName         string
	Data             []byte
	FocusSheet       string // empty selects the configured focus sheet
	IncludeAllSheets bool
	OutputPath       string // when set, the matrix is written there
}

// Result is the outcome of a successful run
type Result struct {
	Run        *run.Run
	Collection *requirement.Collection
}

// Process runs the pipeline. It returns either a complete collection or an
// error, never a partial matrix.
func (s *RTMService) Process(ctx context.Context, req ProcessRequest) (*Result, error) {
	if len(req.Data) == 0 {
		return nil, errors.InvalidInput("workbook content is required")
	}
	if req.RunID == "" {
		req.RunID = s.newID()
	}

	record := run.NewRun(req.RunID, req.FileID, req.FileName, req.FocusSheet, req.IncludeAllSheets,
		run.Fingerprint(req.Data, req.FocusSheet, req.IncludeAllSheets, s.classifier.Name()), s.clock())
	record.Status = run.StatusProcessing
	s.recordPrevious(ctx, record.Fingerprint)
	if s.runs != nil {
		if err := s.runs.Create(ctx, record); err != nil {
			return nil, errors.Wrap(err, "failed to record run")
		}
	}
	if s.tracker != nil {
		s.tracker.Start(record.ID, record.FileID)
	}

	usage := &usageCounter{}
	collection, err := s.execute(ctx, req, record.ID, usage)
	record.PromptTokens, record.CompletionTokens = usage.totals()
	if err == nil && req.OutputPath != "" {
		err = s.writeOutput(collection, req.OutputPath)
	}
	if err != nil {
		s.fail(ctx, record, err)
		return nil, err
	}

	record.Complete(collection.Summary, req.OutputPath, s.clock())
	if s.runs != nil {
		if err := s.runs.Update(ctx, record); err != nil {
			s.logger.Warn("Failed to update run %s: %v", record.ID, err)
		}
	}
	if s.tracker != nil {
		s.tracker.Complete(record.ID, true, "")
	}
	s.logger.Info("Run %s completed: %d requirements (%d fallback), %d prompt / %d completion tokens",
		record.ID, record.TotalRequirements, record.FallbackCount, record.PromptTokens, record.CompletionTokens)
	return &Result{Run: record, Collection: collection}, nil
}

func (s *RTMService) execute(ctx context.Context, req ProcessRequest, runID string, usage *usageCounter) (*requirement.Collection, error) {
	wb, err := s.reader.ReadWorkbook(req.Data, req.FileName)
	if err != nil {
		return nil, err
	}

	extracted, err := s.extractor.ExtractWorkbook(wb, extraction.Options{
		FocusSheet:       req.FocusSheet,
		IncludeAllSheets: req.IncludeAllSheets,
	})
	if err != nil {
		return nil, err
	}
	raws := extracted.Requirements
	if len(raws) == 0 {
		return nil, errors.NoRequirementsFound("workbook " + req.FileName)
	}

	texts := make([]string, len(raws))
	sources := make([]string, len(raws))
	for i, raw := range raws {
		texts[i] = raw.RawText
		sources[i] = raw.Location()
	}

	var observer ports.BatchObserver = usage
	if s.tracker != nil {
		observer = multiObserver{usage, s.tracker.Observer(runID)}
	}
	enrichments, err := s.classifier.ClassifyBatch(ctx, texts, ports.ClassifyContext{
		FileName:   req.FileName,
		SheetNames: wb.SheetNames(),
		FocusSheet: extracted.FocusSheet,
		TotalCount: len(texts),
		Sources:    sources,
		Observer:   observer,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.OperationCancelled(err)
	}
	if len(enrichments) != len(raws) {
		return nil, errors.PipelineIntegrity("classifier returned %d enrichments for %d requirements", len(enrichments), len(raws))
	}

	ids, err := s.assigner.Assign(len(raws))
	if err != nil {
		return nil, err
	}

	return s.assembler.Assemble(raws, enrichments, ids, requirement.Metadata{
		RunID:      runID,
		FileName:   req.FileName,
		FocusSheet: extracted.FocusSheet,
		SheetNames: wb.SheetNames(),
		Sheets:     extracted.Sheets,
	})
}

// Inspect reads a workbook and reports what extraction finds on every sheet,
// without classifying anything
func (s *RTMService) Inspect(data []byte, fileName, focusSheet string) (*extraction.Result, error) {
	wb, err := s.reader.ReadWorkbook(data, fileName)
	if err != nil {
		return nil, err
	}
	return s.extractor.ExtractWorkbook(wb, extraction.Options{FocusSheet: focusSheet, IncludeAllSheets: true})
}

// GetRun returns a run record
func (s *RTMService) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if s.runs == nil {
		return nil, errors.NotFound("run " + id)
	}
	return s.runs.Get(ctx, id)
}

// ListRuns returns recent runs
func (s *RTMService) ListRuns(ctx context.Context, limit int) ([]*run.Run, error) {
	if s.runs == nil {
		return []*run.Run{}, nil
	}
	return s.runs.List(ctx, limit)
}

func (s *RTMService) writeOutput(collection *requirement.Collection, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	if err := s.writer.Write(collection, f); err != nil {
		f.Close()
		os.Remove(path)
		return errors.Wrap(err, "failed to write matrix")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return errors.Wrap(err, "failed to close output file")
	}
	return nil
}

// fail records a failed run. The update uses a context that survives cancellation.
func (s *RTMService) fail(ctx context.Context, record *run.Run, err error) {
	record.Fail(errors.GetCode(err), err.Error(), s.clock())
	if s.runs != nil {
		if updateErr := s.runs.Update(context.WithoutCancel(ctx), record); updateErr != nil {
			s.logger.Warn("Failed to update run %s: %v", record.ID, updateErr)
		}
	}
	if s.tracker != nil {
		s.tracker.Complete(record.ID, false, err.Error())
	}
	s.logger.Error("Run %s failed [%s]: %v", record.ID, record.ErrorCode, err)
}

func (s *RTMService) recordPrevious(ctx context.Context, fingerprint string) {
	if s.runs == nil {
		return
	}
	previous, err := s.runs.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return
	}
	s.logger.Info("Identical submission previously completed as run %s (%d requirements)",
		previous.ID, previous.TotalRequirements)
}

// usageCounter sums token usage reported by batch events
type usageCounter struct {
	mu               sync.Mutex
	promptTokens     int
	completionTokens int
}

func (u *usageCounter) OnBatchEvent(event ports.BatchEvent) {
	if event.Usage == nil {
		return
	}
	u.mu.Lock()
	u.promptTokens += event.Usage.PromptTokens
	u.completionTokens += event.Usage.CompletionTokens
	u.mu.Unlock()
}

func (u *usageCounter) totals() (int, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.promptTokens, u.completionTokens
}

type multiObserver []ports.BatchObserver

func (m multiObserver) OnBatchEvent(event ports.BatchEvent) {
	for _, o := range m {
		o.OnBatchEvent(event)
	}
}
