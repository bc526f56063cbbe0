// Package matrix joins the pipeline stages into a traceability collection.
package matrix

import (
	"time"
	"unicode/utf8"

	"gortm/domain/requirement"
	"gortm/internal"
	"gortm/internal/errors"

	"github.com/montanaflynn/stats"
)

// Assembler builds collections. Clock is injectable for deterministic output.
type Assembler struct {
	Clock  func() time.Time
	logger *internal.Logger
}

// NewAssembler creates an assembler using the wall clock
func NewAssembler() *Assembler {
	return &Assembler{
		Clock:  time.Now,
		logger: internal.DefaultLogger.With("MatrixAssembler"),
	}
}

// Assemble joins raws, enrichments and identifiers by index. The three inputs
// must have equal length; a mismatch is a PIPELINE_INTEGRITY error and no
// collection is produced.
func (a *Assembler) Assemble(raws []requirement.RawRequirement, enrichments []requirement.Enrichment, ids []requirement.Identifiers, meta requirement.Metadata) (*requirement.Collection, error) {
	if len(raws) != len(enrichments) || len(raws) != len(ids) {
		return nil, errors.PipelineIntegrity("%d raw requirements, %d enrichments, %d identifiers",
			len(raws), len(enrichments), len(ids))
	}

	now := a.Clock()
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = now
	}

	collection := &requirement.Collection{
		Requirements: make([]requirement.Requirement, len(raws)),
		Metadata:     meta,
		TotalCount:   len(raws),
	}
	for i := range raws {
		collection.Requirements[i] = requirement.Requirement{
			RawRequirement: raws[i],
			Enrichment:     enrichments[i],
			RequirementID:  ids[i].RequirementID,
			TestCaseID:     ids[i].TestCaseID,
			Status:         requirement.StatusNotTested,
			CreatedAt:      now,
		}
	}

	summary, err := Summarize(collection.Requirements)
	if err != nil {
		return nil, errors.Wrap(err, "failed to summarize requirements")
	}
	collection.Summary = summary

	a.logger.Info("Assembled %d requirements (%d via fallback)", summary.TotalRequirements, summary.Degraded())
	return collection, nil
}

// Summarize computes all counts in one pass plus confidence and description
// length statistics
func Summarize(reqs []requirement.Requirement) (requirement.Summary, error) {
	summary := requirement.Summary{
		TotalRequirements: len(reqs),
		ByType:            make(map[requirement.Type]int),
		ByPriority:        make(map[requirement.Priority]int),
		BySourceSheet:     make(map[string]int),
		ByStatus:          make(map[requirement.Status]int),
		BySource:          make(map[requirement.Source]int),
		SheetOrder:        []string{},
	}

	confidences := make([]float64, 0, len(reqs))
	lengths := make([]float64, 0, len(reqs))
	for _, r := range reqs {
		summary.ByType[r.RequirementType]++
		summary.ByPriority[r.Priority]++
		if summary.BySourceSheet[r.SourceSheet] == 0 {
			summary.SheetOrder = append(summary.SheetOrder, r.SourceSheet)
		}
		summary.BySourceSheet[r.SourceSheet]++
		summary.ByStatus[r.Status]++
		summary.BySource[r.Source]++

		confidences = append(confidences, r.Confidence)
		lengths = append(lengths, float64(utf8.RuneCountInString(r.RawText)))
	}

	var err error
	if summary.Confidence, err = describe(confidences); err != nil {
		return summary, err
	}
	if summary.DescriptionLength, err = describe(lengths); err != nil {
		return summary, err
	}
	return summary, nil
}

// describe returns zero statistics for an empty series
func describe(data []float64) (requirement.ConfidenceStats, error) {
	var out requirement.ConfidenceStats
	if len(data) == 0 {
		return out, nil
	}

	var err error
	if out.Mean, err = stats.Mean(data); err != nil {
		return out, err
	}
	if out.Median, err = stats.Median(data); err != nil {
		return out, err
	}
	if out.Min, err = stats.Min(data); err != nil {
		return out, err
	}
	if out.Max, err = stats.Max(data); err != nil {
		return out, err
	}
	return out, nil
}
