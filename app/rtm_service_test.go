package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gortm/adapters/excel"
	"gortm/adapters/llm/heuristic"
	"gortm/adapters/memory"
	"gortm/domain/requirement"
	"gortm/domain/run"
	"gortm/internal/errors"
	"gortm/internal/extraction"
	"gortm/internal/identifier"
	"gortm/internal/matrix"
	"gortm/internal/progress"
	"gortm/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const focusSheet = "2- tool Requirements"

// usageClassifier wraps the rule-based classifier and reports one batch with token usage
type usageClassifier struct {
	inner *heuristic.Classifier
	calls int
	err   error
}

func (c *usageClassifier) Name() string { return "stub" }

func (c *usageClassifier) ClassifyBatch(ctx context.Context, texts []string, cctx ports.ClassifyContext) ([]requirement.Enrichment, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if cctx.Observer != nil {
		cctx.Observer.OnBatchEvent(ports.BatchEvent{Batch: 0, Batches: 1, Size: len(texts), State: ports.BatchSent, Attempt: 1})
		cctx.Observer.OnBatchEvent(ports.BatchEvent{
			Batch: 0, Batches: 1, Size: len(texts), State: ports.BatchSucceeded, Attempt: 1,
			Usage: &ports.UsageData{PromptTokens: 200, CompletionTokens: 50, TotalTokens: 250},
		})
	}
	return c.inner.ClassifyBatch(ctx, texts, cctx)
}

func workbookFixture(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Notes"))
	require.NoError(t, f.SetSheetRow("Notes", "A1", &[]interface{}{"Requirement", "Owner"}))
	require.NoError(t, f.SetSheetRow("Notes", "A2", &[]interface{}{"Audit records should be kept for a year", "Ops"}))

	_, err := f.NewSheet(focusSheet)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(focusSheet, "A1", &[]interface{}{"Req ID", "Requirement Description", "Status"}))
	require.NoError(t, f.SetSheetRow(focusSheet, "A2", &[]interface{}{"T-1", "Users can export monthly reports", "Open"}))
	require.NoError(t, f.SetSheetRow(focusSheet, "A3", &[]interface{}{"T-2", "Response time must stay under two seconds", "Open"}))
	require.NoError(t, f.SetSheetRow(focusSheet, "A4", &[]interface{}{"T-3", "N/A", "Closed"}))
	require.NoError(t, f.SetSheetRow(focusSheet, "A5", &[]interface{}{"T-4", "The API must expose an integration endpoint", "Open"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type serviceFixture struct {
	service    *RTMService
	runs       ports.RunRepository
	tracker    *progress.Tracker
	classifier *usageClassifier
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	assigner, err := identifier.NewAssigner(identifier.DefaultConfig())
	require.NoError(t, err)

	fx := &serviceFixture{
		runs:       memory.NewRunRepository(),
		tracker:    progress.NewTracker(nil),
		classifier: &usageClassifier{inner: heuristic.NewClassifier(nil)},
	}
	service, err := NewRTMService(RTMServiceDeps{
		Reader:     excel.NewSheetReader(excel.DefaultReaderConfig()),
		Extractor:  extraction.NewExtractor(extraction.DefaultConfig(), nil),
		Classifier: fx.classifier,
		Assigner:   assigner,
		Assembler:  matrix.NewAssembler(),
		Writer:     excel.NewMatrixWriter(excel.DefaultWriterConfig()),
		Runs:       fx.runs,
		Tracker:    fx.tracker,
	})
	require.NoError(t, err)

	seq := 0
	service.newID = func() string {
		seq++
		return fmt.Sprintf("run-%d", seq)
	}
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	service.clock = func() time.Time { return fixed }
	fx.service = service
	return fx
}

func TestNewRTMServiceRequiresPipeline(t *testing.T) {
	_, err := NewRTMService(RTMServiceDeps{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestProcessFocusSheetFirstAcrossAllSheets(t *testing.T) {
	fx := newServiceFixture(t)
	output := filepath.Join(t.TempDir(), "rtm.xlsx")

	result, err := fx.service.Process(context.Background(), ProcessRequest{
		FileID:           "file-1",
		FileName:         "project.xlsx",
		Data:             workbookFixture(t),
		IncludeAllSheets: true,
		OutputPath:       output,
	})
	require.NoError(t, err)

	reqs := result.Collection.Requirements
	require.Len(t, reqs, 4)
	for i, r := range reqs {
		assert.Equal(t, fmt.Sprintf("REQ-%03d", i+1), r.RequirementID)
		assert.Equal(t, fmt.Sprintf("TC-%03d", i+1), r.TestCaseID)
	}
	assert.Equal(t, focusSheet, reqs[0].SourceSheet)
	assert.Equal(t, "Users can export monthly reports", reqs[0].RawText)
	assert.Equal(t, "T-1", reqs[0].OriginalID)
	assert.Equal(t, "Response time must stay under two seconds", reqs[1].RawText)
	assert.Equal(t, requirement.TypeNonFunctional, reqs[1].RequirementType)
	assert.Equal(t, requirement.PriorityHigh, reqs[1].Priority)
	assert.Equal(t, "The API must expose an integration endpoint", reqs[2].RawText)
	assert.Equal(t, "Notes", reqs[3].SourceSheet)
	assert.Equal(t, "B2", reqs[1].SourceCell.A1())

	summary := result.Collection.Summary
	assert.Equal(t, 4, summary.TotalRequirements)
	assert.Equal(t, []string{focusSheet, "Notes"}, summary.SheetOrder)
	assert.Equal(t, 3, summary.BySourceSheet[focusSheet])
	assert.Equal(t, "run-1", result.Collection.Metadata.RunID)
	assert.Equal(t, focusSheet, result.Collection.Metadata.FocusSheet)

	assert.Equal(t, run.StatusCompleted, result.Run.Status)
	assert.Equal(t, 200, result.Run.PromptTokens)
	assert.Equal(t, 50, result.Run.CompletionTokens)
	assert.Equal(t, output, result.Run.OutputFile)

	stored, err := fx.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.TotalRequirements)
	require.NotNil(t, stored.Summary.Summary)

	p, ok := fx.tracker.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercent)

	out, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer out.Close()
	assert.Len(t, out.GetSheetList(), 3)
}

func TestProcessFocusSheetOnly(t *testing.T) {
	fx := newServiceFixture(t)

	result, err := fx.service.Process(context.Background(), ProcessRequest{
		FileName: "project.xlsx",
		Data:     workbookFixture(t),
	})
	require.NoError(t, err)
	require.Len(t, result.Collection.Requirements, 3)
	for _, r := range result.Collection.Requirements {
		assert.Equal(t, focusSheet, r.SourceSheet)
	}
	assert.Empty(t, result.Run.OutputFile)
}

func TestProcessNoRequirementsFound(t *testing.T) {
	fx := newServiceFixture(t)

	result, err := fx.service.Process(context.Background(), ProcessRequest{
		FileName:   "project.xlsx",
		Data:       workbookFixture(t),
		FocusSheet: "Missing Sheet",
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.CodeNoRequirementsFound))
	assert.Equal(t, 0, fx.classifier.calls)

	stored, err := fx.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, stored.Status)
	assert.Equal(t, errors.CodeNoRequirementsFound, stored.ErrorCode)

	p, ok := fx.tracker.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusFailed, p.Status)
}

func TestProcessCancelledReturnsNoMatrix(t *testing.T) {
	fx := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := fx.service.Process(ctx, ProcessRequest{
		FileName: "project.xlsx",
		Data:     workbookFixture(t),
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.CodeOperationCancelled))

	stored, err := fx.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, stored.Status)
	assert.Equal(t, errors.CodeOperationCancelled, stored.ErrorCode)
}

func TestProcessPropagatesClassifierFailure(t *testing.T) {
	fx := newServiceFixture(t)
	fx.classifier.err = errors.ClassifierBatchFailure(0, 3, fmt.Errorf("upstream down"))

	_, err := fx.service.Process(context.Background(), ProcessRequest{
		FileName: "project.xlsx",
		Data:     workbookFixture(t),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeClassifierBatchFailure))
}

func TestProcessRejectsUnreadableWorkbook(t *testing.T) {
	fx := newServiceFixture(t)

	_, err := fx.service.Process(context.Background(), ProcessRequest{
		FileName: "broken.xlsx",
		Data:     []byte("not a zip archive"),
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnreadableWorkbook))
}

func TestProcessRequiresData(t *testing.T) {
	fx := newServiceFixture(t)

	_, err := fx.service.Process(context.Background(), ProcessRequest{FileName: "empty.xlsx"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestInspectReportsEverySheet(t *testing.T) {
	fx := newServiceFixture(t)

	result, err := fx.service.Inspect(workbookFixture(t), "project.xlsx", "")
	require.NoError(t, err)
	assert.True(t, result.FocusFound)
	require.Len(t, result.Sheets, 2)
	assert.Equal(t, focusSheet, result.Sheets[0].Sheet)
	assert.Equal(t, "Requirement Description", result.Sheets[0].DescriptionColumn)
	assert.Equal(t, "Notes", result.Sheets[1].Sheet)
	assert.Equal(t, requirement.SheetProcessed, result.Sheets[1].Status)
	assert.Len(t, result.Requirements, 4)
	assert.Equal(t, 0, fx.classifier.calls)
}

func TestListAndGetRuns(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := fx.service.Process(ctx, ProcessRequest{FileName: "project.xlsx", Data: workbookFixture(t)})
		require.NoError(t, err)
	}

	runs, err := fx.service.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	got, err := fx.service.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, "project.xlsx", got.FileName)

	_, err = fx.service.GetRun(ctx, "run-9")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
