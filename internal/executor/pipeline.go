package executor

import (
	"context"
	"fmt"
	"time"

	"surfacecheck/internal/browser"
	"surfacecheck/internal/config"
	"surfacecheck/internal/embedding"
	"surfacecheck/internal/explorer"
	"surfacecheck/internal/export"
	"surfacecheck/internal/logging"
	"surfacecheck/internal/mapping"
	"surfacecheck/internal/reasoning"
	"surfacecheck/internal/retrieval"
)

// Store is the slice of the durable store the pipeline writes to. A
// persistence failure is fatal: a run that could not durably record its
// index or results is treated as not having happened.
type Store interface {
	SaveIndex(entries []retrieval.Entry) error
	SaveTests(tests []mapping.TestSpecification) error
	SaveRun(run *TestRun) error
}

// Result is the structured outcome the pipeline hands its caller. The
// pipeline never raises past its own boundary; failures are reported here
// so the CLI can render them without a crash.
type Result struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
	Controls int      `json:"controls"`
	Findings int      `json:"findings"`
	Mappings int      `json:"mappings"`
	Tests    int      `json:"tests"`
	Run      *TestRun `json:"run,omitempty"`
}

// Pipeline sequences the full flow: ingest the export, explore the UI,
// map fields to controls, synthesize tests, and replay them. Everything
// runs on one logical thread; the browser session is shared state and two
// concurrent actions would corrupt each other's snapshots.
type Pipeline struct {
	cfg     *config.Config
	backend browser.Backend
	llm     reasoning.LLMClient
	index   *retrieval.Index
	store   Store
}

// NewPipeline wires a pipeline. store may be nil to skip persistence.
func NewPipeline(cfg *config.Config, backend browser.Backend, llm reasoning.LLMClient, engine embedding.Engine, store Store) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		backend: backend,
		llm:     llm,
		index:   retrieval.NewIndex(engine, cfg.Retrieval.ChunkSize),
		store:   store,
	}
}

// Index exposes the pipeline's retrieval index.
func (p *Pipeline) Index() *retrieval.Index { return p.index }

type learnOutput struct {
	exp      *export.Export
	controls []explorer.DiscoveredControl
	findings []*explorer.ExplorationFinding
	err      error
}

// Run executes the whole pipeline and reports a structured result.
func (p *Pipeline) Run(ctx context.Context) Result {
	// The learning phase races a fixed budget. On timeout the in-flight
	// work is abandoned, not cancelled: a pending backend call may still
	// complete in the background with no further effect on the pipeline.
	learned := make(chan learnOutput, 1)
	go func() {
		learned <- p.learn(ctx)
	}()

	var out learnOutput
	select {
	case out = <-learned:
	case <-time.After(p.cfg.Explore.LearnTimeout()):
		logging.Executor("learning phase exceeded %v, abandoning", p.cfg.Explore.LearnTimeout())
		return Result{Error: fmt.Sprintf("learning phase timed out after %v", p.cfg.Explore.LearnTimeout())}
	case <-ctx.Done():
		return Result{Error: ctx.Err().Error()}
	}
	if out.err != nil {
		return Result{Error: out.err.Error()}
	}

	result := Result{
		Controls: len(out.controls),
		Findings: len(out.findings),
	}

	mapper := mapping.NewMapper(p.llm, p.index, p.cfg.Retrieval)
	mappings, err := mapper.MapFieldsToControls(ctx, out.exp.SummaryText(5), out.controls)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	for i := range mappings {
		if mappings[i].SourceFile == "" {
			mappings[i].SourceFile = out.exp.SourceFile
		}
	}
	result.Mappings = len(mappings)

	tests, err := mapper.SynthesizeTests(ctx, mappings)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Tests = len(tests)
	if p.store != nil {
		if err := p.store.SaveTests(tests); err != nil {
			result.Error = fmt.Sprintf("persisting tests: %v", err)
			return result
		}
	}

	dismisser := p.dismisser()
	exec := NewExecutor(p.backend, p.index, dismisser, p.cfg.Execution, p.cfg.Retrieval, p.cfg.Explore.Heuristics, p.cfg.Target.URL)
	run := exec.ExecuteRun(ctx, tests)
	result.Run = run
	result.RunID = run.RunID
	if p.store != nil {
		if err := p.store.SaveRun(run); err != nil {
			result.Error = fmt.Sprintf("persisting run: %v", err)
			return result
		}
	}

	result.Success = true
	return result
}

// learn ingests the export and explores the UI, streaming findings into
// the index, then persists the index.
func (p *Pipeline) learn(ctx context.Context) learnOutput {
	exp, err := export.ParseFile(p.cfg.Target.ExportPath)
	if err != nil {
		return learnOutput{err: err}
	}
	rows := make([]retrieval.Row, len(exp.Records))
	for i, rec := range exp.Records {
		rows[i] = retrieval.Row(rec)
	}
	if len(rows) > 0 {
		if err := p.index.Ingest(ctx, "export:"+exp.SourceFile, rows); err != nil {
			return learnOutput{err: err}
		}
	}

	if err := p.backend.Navigate(ctx, p.cfg.Target.URL); err != nil {
		return learnOutput{err: fmt.Errorf("navigating to target: %w", err)}
	}
	p.dismisser().Dismiss(ctx, p.backend)

	ex := explorer.NewExplorer(p.backend, p.cfg.Explore, p.index)
	controls := ex.Discover(ctx)

	terms := searchTerms(exp)
	findings, err := ex.ExploreAll(ctx, controls, func(c explorer.DiscoveredControl) []string {
		if c.Kind == explorer.KindSearchBox {
			return terms
		}
		return nil
	})
	if err != nil {
		return learnOutput{err: err}
	}

	if p.store != nil {
		if err := p.store.SaveIndex(p.index.Entries()); err != nil {
			return learnOutput{err: fmt.Errorf("persisting index: %w", err)}
		}
	}

	return learnOutput{exp: exp, controls: controls, findings: findings}
}

func (p *Pipeline) dismisser() browser.ObstacleDismisser {
	catalog := p.cfg.Explore.Heuristics.Merge()
	return browser.NewSelectorDismisser(catalog.Obstacles, p.cfg.Execution.MaxObstacleDismissals)
}

// searchTerms picks candidate search terms from the export: sample values
// of the field with the widest value space, which is the field most likely
// backed by free-text search.
func searchTerms(exp *export.Export) []string {
	summaries := exp.Summarize(3)
	var best *export.FieldSummary
	for i := range summaries {
		if best == nil || summaries[i].DistinctCount > best.DistinctCount {
			best = &summaries[i]
		}
	}
	if best == nil {
		return nil
	}
	return best.SampleValues
}
