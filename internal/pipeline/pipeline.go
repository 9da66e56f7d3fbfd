// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/signalnine/oncall/internal/analyzer"
	"github.com/signalnine/oncall/internal/filter"
	"github.com/signalnine/oncall/internal/logsource"
	"github.com/signalnine/oncall/internal/metrics"
	"github.com/signalnine/oncall/internal/protocol"
	"github.com/signalnine/oncall/internal/report"
	"github.com/signalnine/oncall/internal/stats"
)

// Analyzer produces findings from a fetched entry set
type Analyzer interface {
	Analyze(ctx context.Context, entries []protocol.LogEntry, st protocol.Statistics) (*analyzer.Analysis, error)
}

// Renderer serializes and publishes a finished report
type Renderer interface {
	Render(doc report.Document, format protocol.OutputFormat) ([]byte, string, error)
}

// Options holds the request defaults and bounds
type Options struct {
	DefaultFilter string
	DefaultLimit  int
	MaxLimit      int
	TopErrors     int
}

// Pipeline runs fetch, aggregate, analyze and render for one request at a time.
// It is safe for concurrent use; runs share no mutable state.
type Pipeline struct {
	source   logsource.Source
	analyzer Analyzer
	renderer Renderer
	opts     Options
	log      zerolog.Logger
	metrics  *metrics.Handler
	observer Observer
	now      func() time.Time
	newID    func() string
}

// New wires a pipeline. m may be nil.
func New(src logsource.Source, an Analyzer, rn Renderer, opts Options, log zerolog.Logger, m *metrics.Handler) *Pipeline {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 100
	}
	if opts.TopErrors <= 0 {
		opts.TopErrors = stats.DefaultTopErrors
	}
	return &Pipeline{
		source:   src,
		analyzer: an,
		renderer: rn,
		opts:     opts,
		log:      log.With().Str("component", "pipeline").Logger(),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// WithObserver registers a hook that sees every state transition
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	p.observer = o
	return p
}

// WithClock replaces the time source
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// WithIDGenerator replaces the analysis id generator
func (p *Pipeline) WithIDGenerator(fn func() string) *Pipeline {
	p.newID = fn
	return p
}

// Prepare applies defaults and validates req. Run and QuickStats call it too.
func (p *Pipeline) Prepare(req protocol.AnalysisRequest) (protocol.AnalysisRequest, error) {
	req = req.WithDefaults(p.opts.DefaultLimit)
	if err := req.Validate(p.opts.MaxLimit); err != nil {
		return req, err
	}
	return req, nil
}

func (p *Pipeline) start() *run {
	start := p.now()
	r := &run{
		id:       p.newID(),
		state:    StateReceived,
		entered:  start,
		now:      p.now,
		observer: p.observer,
		stageEnd: func(s State, d time.Duration) { p.metrics.ObserveStage(string(s), d) },
	}
	if p.observer != nil {
		p.observer(Transition{AnalysisID: r.id, To: StateReceived, At: start})
	}
	return r
}

func (p *Pipeline) failed(r *run, mode string, code Code, attempts int, err error) *StageError {
	se := &StageError{AnalysisID: r.id, Stage: r.state, Code: code, Attempts: attempts, Err: err}
	r.fail(se)
	p.metrics.IncStageFailure(string(se.Stage), string(se.Code))
	p.metrics.IncRun(mode, string(StateFailed))
	p.log.Error().Err(err).
		Str("analysis_id", r.id).
		Str("stage", string(se.Stage)).
		Str("code", string(code)).
		Int("attempts", attempts).
		Msg("Analysis failed")
	return se
}

// fetch runs FETCHING and AGGREGATING for r
func (p *Pipeline) fetch(ctx context.Context, r *run, mode string, req protocol.AnalysisRequest) ([]protocol.LogEntry, protocol.Statistics, *StageError) {
	r.advance(StateFetching)

	predicate := filter.Build(filter.Params{
		Now:           r.entered,
		HoursBack:     req.HoursBack,
		Query:         req.FilterQuery,
		DefaultQuery:  p.opts.DefaultFilter,
		FocusOnErrors: req.FocusOnErrors,
	})
	p.log.Debug().Str("analysis_id", r.id).Str("predicate", predicate).Int("limit", req.MaxLogs).Msg("Fetching logs")

	it, err := p.source.Fetch(ctx, predicate, req.MaxLogs)
	if err != nil {
		return nil, protocol.Statistics{}, p.failed(r, mode, sourceCode(ctx, err), 0, err)
	}
	entries, err := logsource.Collect(it)
	if err != nil {
		return nil, protocol.Statistics{}, p.failed(r, mode, sourceCode(ctx, err), 0, err)
	}
	p.metrics.AddEntriesFetched(len(entries))

	r.advance(StateAggregating)
	st := stats.Aggregate(entries, req.HoursBack, p.opts.TopErrors)
	return entries, st, nil
}

// Run executes a full analysis. On failure the error is a *StageError, or a
// *protocol.RequestError when req is invalid and no run was started.
func (p *Pipeline) Run(ctx context.Context, req protocol.AnalysisRequest) (*protocol.AnalysisResult, error) {
	req, err := p.Prepare(req)
	if err != nil {
		return nil, err
	}

	r := p.start()
	timestamp := r.entered
	log := p.log.With().Str("analysis_id", r.id).Logger()
	log.Info().Int("hours_back", req.HoursBack).Int("max_logs", req.MaxLogs).Bool("focus_on_errors", req.FocusOnErrors).Msg("Analysis started")

	entries, st, serr := p.fetch(ctx, r, "full", req)
	if serr != nil {
		return nil, serr
	}

	r.advance(StateAnalyzing)
	analysis, err := p.analyzer.Analyze(ctx, entries, st)
	if err != nil {
		code, attempts := analyzerCode(ctx, err)
		return nil, p.failed(r, "full", code, attempts, err)
	}
	if analysis == nil {
		return nil, p.failed(r, "full", CodeInternal, 0, fmt.Errorf("analyzer returned no result"))
	}

	r.advance(StateRendering)
	doc := report.Document{
		AnalysisID:      r.id,
		Timestamp:       timestamp,
		Summary:         analysis.Summary,
		Statistics:      st,
		Findings:        analysis.Findings,
		Recommendations: analysis.Recommendations,
	}
	_, path, err := p.renderer.Render(doc, req.OutputFormat)
	if err != nil {
		code := CodeRenderError
		if canceled(ctx, err) {
			code = CodeCanceled
		}
		return nil, p.failed(r, "full", code, 0, err)
	}

	r.advance(StateComplete)
	p.metrics.IncRun("full", string(StateComplete))
	log.Info().
		Int("total_logs", st.TotalLogs).
		Int("findings", len(analysis.Findings)).
		Int("dropped", analysis.Dropped).
		Str("document_path", path).
		Msg("Analysis completed")

	return &protocol.AnalysisResult{
		AnalysisID:      r.id,
		Timestamp:       timestamp,
		Statistics:      st,
		Findings:        analysis.Findings,
		Summary:         analysis.Summary,
		DocumentPath:    path,
		Recommendations: analysis.Recommendations,
	}, nil
}

// QuickStats fetches and aggregates without analyzing or rendering.
// The run ends COMPLETE straight from AGGREGATING.
func (p *Pipeline) QuickStats(ctx context.Context, req protocol.AnalysisRequest) (*protocol.Statistics, error) {
	req, err := p.Prepare(req)
	if err != nil {
		return nil, err
	}

	r := p.start()
	_, st, serr := p.fetch(ctx, r, "stats", req)
	if serr != nil {
		return nil, serr
	}

	r.move(StateComplete, nil)
	p.metrics.IncRun("stats", string(StateComplete))
	p.log.Info().Str("analysis_id", r.id).Int("total_logs", st.TotalLogs).Msg("Quick stats computed")
	return &st, nil
}
