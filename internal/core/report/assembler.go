package report

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/infomap"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/normalize"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/segment"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/testline"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
	"github.com/joseph-ayodele/lab-report-parser/internal/metrics"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

// engine is the compiled form of one rule table set. It is immutable once built.
type engine struct {
	tables    *rules.Tables
	norm      *normalize.Normalizer
	extractor *infomap.Extractor
	segmenter *segment.Segmenter
	parser    *testline.Parser
}

// Assembler turns report text into an entity.Report. Parse calls share no mutable
// state; Reload swaps the rule tables atomically for subsequent parses.
type Assembler struct {
	engine  atomic.Pointer[engine]
	lookup  normalize.CorrectionLookup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Assembler)

func WithCorrections(lookup normalize.CorrectionLookup) Option {
	return func(a *Assembler) { a.lookup = lookup }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssembler compiles tables, which are expected to be validated (rules.Default or rules.LoadFile).
func NewAssembler(tables *rules.Tables, opts ...Option) *Assembler {
	a := &Assembler{logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	a.engine.Store(a.compile(tables))
	return a
}

func (a *Assembler) compile(tables *rules.Tables) *engine {
	norm := normalize.New(tables, a.lookup, a.logger)
	return &engine{
		tables:    tables,
		norm:      norm,
		extractor: infomap.NewExtractor(tables, a.logger, infomap.WithRepairObserver(a.metrics.RepairApplied)),
		segmenter: segment.New(tables, a.logger),
		parser:    testline.New(tables, norm, a.logger),
	}
}

// Reload validates tables and makes them the active set. In-flight parses keep the old set.
func (a *Assembler) Reload(tables *rules.Tables) error {
	if err := tables.Validate(); err != nil {
		return common.NewAppError("RULES_ERROR", "invalid rule tables", err)
	}
	a.engine.Store(a.compile(tables))
	a.logger.Info("report.rules.reloaded", "sections", len(tables.Sections), "repairs", len(tables.Repairs))
	return nil
}

// Tables returns the active rule tables.
func (a *Assembler) Tables() *rules.Tables {
	return a.engine.Load().tables
}

// Parse assembles a report from raw text. Blank input fails with common.ErrNoInput;
// every other malformed piece of the document is dropped rather than reported.
func (a *Assembler) Parse(ctx context.Context, text string) (*entity.Report, error) {
	start := time.Now()
	if strings.TrimSpace(text) == "" {
		a.metrics.ObserveParse(metrics.OutcomeNoInput, 0)
		return nil, common.NewAppError("NO_INPUT", "no input text", common.ErrNoInput)
	}
	e := a.engine.Load()

	text = normalize.NewlineNormalize(text)
	info := e.extractor.Extract(strings.Split(text, "\n"))

	out := &entity.Report{
		PatientInfo: entity.PatientInfo{
			Name:      a.field(ctx, e, info, rules.FieldName),
			PatientID: a.field(ctx, e, info, rules.FieldPatientID),
			Age:       a.field(ctx, e, info, rules.FieldAge),
			Gender:    a.field(ctx, e, info, rules.FieldGender),
			Phone:     a.field(ctx, e, info, rules.FieldPhone),
		},
		LabInfo: entity.LabInfo{
			LabID:         a.field(ctx, e, info, rules.FieldLabID),
			RequestedBy:   a.field(ctx, e, info, rules.FieldRequestedBy),
			RequestedDate: a.field(ctx, e, info, rules.FieldRequestedDate),
			CollectedDate: a.field(ctx, e, info, rules.FieldCollectedDate),
			AnalysisDate:  a.field(ctx, e, info, rules.FieldAnalysisDate),
			ValidatedBy:   a.field(ctx, e, info, rules.FieldValidatedBy),
		},
		TestResults: []entity.TestResult{},
	}

	sections := e.segmenter.SegmentDocument(text)
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			a.metrics.ObserveParse(metrics.OutcomeFailed, time.Since(start))
			return nil, err
		}
		results := e.parser.ParseLines(ctx, sec.Name, sec.Lines)
		a.metrics.AddTestResults(sec.Name, len(results))
		out.TestResults = append(out.TestResults, results...)
	}

	elapsed := time.Since(start)
	a.metrics.ObserveParse(metrics.OutcomeOK, elapsed)
	a.logger.Info("report.parse.ok",
		"request_id", common.RequestIDFromContext(ctx),
		"sections", len(sections),
		"test_results", len(out.TestResults),
		"info_keys", info.Len(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return out, nil
}

// field resolves a logical field through its alias list and normalizes the value.
// An unresolved or empty value is nil.
func (a *Assembler) field(ctx context.Context, e *engine, info *infomap.InfoMap, name string) *string {
	raw, ok := e.extractor.Resolve(info, name)
	if !ok {
		return nil
	}
	return entity.StrPtr(e.norm.Normalize(ctx, raw, constants.CorrectionPatientInfo))
}
