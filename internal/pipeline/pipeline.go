// Package pipeline sequences a harvest run: discover candidates, fetch their
// PDFs, extract fields, and reconcile the batch into the dataset.
package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cda-harvester/internal/dataset"
	"github.com/sells-group/cda-harvester/internal/discovery"
	"github.com/sells-group/cda-harvester/internal/extract"
	"github.com/sells-group/cda-harvester/internal/fetcher"
	"github.com/sells-group/cda-harvester/internal/model"
	"github.com/sells-group/cda-harvester/internal/ocr"
	"github.com/sells-group/cda-harvester/internal/reconcile"
	"github.com/sells-group/cda-harvester/internal/store"
)

var tracer = otel.Tracer("github.com/sells-group/cda-harvester/internal/pipeline")

// Session is the exclusive page handle a run drives. Sessions that also
// implement fetcher.Navigator enable session-replay downloads.
type Session interface {
	discovery.Page
	io.Closer
}

// SessionFactory acquires the session for one run.
type SessionFactory func(ctx context.Context) (Session, error)

// Discoverer lists report candidates on a page.
type Discoverer interface {
	Discover(ctx context.Context, page discovery.Page) ([]model.ReportCandidate, error)
}

// Fetcher retrieves the document for a candidate.
type Fetcher interface {
	Fetch(ctx context.Context, c model.ReportCandidate) (*model.Document, error)
}

// FetcherFactory builds the run's fetcher. nav is nil when the session cannot
// navigate.
type FetcherFactory func(nav fetcher.Navigator) Fetcher

// Options configures a Pipeline.
type Options struct {
	DatasetPath              string
	ChangelogPath            string
	MaxConcurrentExtractions int
	RunTimeout               time.Duration
	Limit                    int
	DryRun                   bool
}

// Deps are the collaborators of a Pipeline. Store is optional.
type Deps struct {
	Sessions   SessionFactory
	Discoverer Discoverer
	Fetchers   FetcherFactory
	Text       ocr.Extractor
	Fields     extract.Extractor
	Store      store.Store
}

// Pipeline runs harvests.
type Pipeline struct {
	opts Options
	deps Deps
	now  func() time.Time
}

// New creates a Pipeline.
func New(opts Options, deps Deps) *Pipeline {
	if opts.MaxConcurrentExtractions <= 0 {
		opts.MaxConcurrentExtractions = 1
	}
	return &Pipeline{opts: opts, deps: deps, now: time.Now}
}

// work is a downloaded candidate awaiting extraction.
type work struct {
	idx  int
	cand model.ReportCandidate
	doc  *model.Document
}

// Run executes one harvest. Per-report failures are recorded in the summary
// and never fail the run. The session is released on every exit path.
func (p *Pipeline) Run(ctx context.Context) (summary *model.RunSummary, err error) {
	start := time.Now()
	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	summary = &model.RunSummary{}
	runID := p.openRun(ctx)
	summary.RunID = runID
	log := zap.L().With(zap.String("run_id", runID))

	defer func() {
		summary.DurationMS = time.Since(start).Milliseconds()
		summary.Failed = countFailed(summary.Outcomes)
		if r := recover(); r != nil {
			p.closeRun(ctx, summary, eris.Errorf("pipeline: panic: %v", r))
			panic(r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.closeRun(ctx, summary, err)
	}()

	sess, err := p.deps.Sessions(ctx)
	if err != nil {
		return summary, eris.Wrap(err, "pipeline: acquire session")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("pipeline: release session", zap.Error(cerr))
		}
	}()

	candidates, err := p.discover(ctx, sess)
	if err != nil {
		return summary, err
	}
	summary.Candidates = len(candidates)
	summary.Outcomes = make([]model.ReportOutcome, len(candidates))
	for i, c := range candidates {
		summary.Outcomes[i] = model.ReportOutcome{Title: c.Title, URL: c.URL, Stage: model.StageResolve, OK: p.opts.DryRun}
	}

	if len(candidates) == 0 {
		log.Warn("pipeline: no reports found")
		return summary, nil
	}
	if p.opts.DryRun {
		log.Info("pipeline: dry run, skipping downloads", zap.Int("candidates", len(candidates)))
		return summary, nil
	}

	var nav fetcher.Navigator
	if n, ok := sess.(fetcher.Navigator); ok {
		nav = n
	}
	downloaded, err := p.fetchAll(ctx, p.deps.Fetchers(nav), candidates, summary)
	if err != nil {
		return summary, err
	}
	summary.Downloaded = len(downloaded)

	batch, err := p.extractAll(ctx, downloaded, summary)
	if err != nil {
		return summary, err
	}
	summary.Extracted = len(batch)

	if err := p.reconcile(ctx, batch, summary); err != nil {
		return summary, err
	}

	log.Info("pipeline: run complete",
		zap.Int("candidates", summary.Candidates),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("extracted", summary.Extracted),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("total_records", summary.TotalRecords),
	)
	return summary, nil
}

func (p *Pipeline) discover(ctx context.Context, page discovery.Page) ([]model.ReportCandidate, error) {
	ctx, span := tracer.Start(ctx, "pipeline.discover")
	defer span.End()

	candidates, err := p.deps.Discoverer.Discover(ctx, page)
	if err != nil {
		span.RecordError(err)
		return nil, eris.Wrap(err, "pipeline: discover reports")
	}
	if p.opts.Limit > 0 && len(candidates) > p.opts.Limit {
		candidates = candidates[:p.opts.Limit]
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates, nil
}

// fetchAll downloads candidates one at a time; the session is exclusive.
func (p *Pipeline) fetchAll(ctx context.Context, f Fetcher, candidates []model.ReportCandidate, summary *model.RunSummary) ([]work, error) {
	var out []work
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: fetch interrupted")
		}

		fctx, span := tracer.Start(ctx, "pipeline.fetch", trace.WithAttributes(attribute.String("url", c.URL)))
		doc, err := f.Fetch(fctx, c)
		if err != nil {
			span.RecordError(err)
			span.End()
			summary.Outcomes[i] = failed(c, model.StageFetch, err)
			continue
		}
		span.SetAttributes(attribute.String("source", string(doc.Source)))
		span.End()

		summary.Outcomes[i].Stage = model.StageFetch
		summary.Outcomes[i].Source = string(doc.Source)
		out = append(out, work{idx: i, cand: c, doc: doc})
	}
	return out, nil
}

// extractAll runs text and field extraction concurrently. Results keep
// candidate order.
func (p *Pipeline) extractAll(ctx context.Context, items []work, summary *model.RunSummary) ([]model.ExtractedRecord, error) {
	results := make([]*model.ExtractedRecord, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrentExtractions)
	for j, w := range items {
		g.Go(func() error {
			rec, outcome, err := p.extractOne(gctx, w)
			if err != nil {
				return err
			}
			outcome.Source = summary.Outcomes[w.idx].Source
			summary.Outcomes[w.idx] = outcome
			results[j] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: extraction interrupted")
	}

	var batch []model.ExtractedRecord
	for _, r := range results {
		if r != nil {
			batch = append(batch, *r)
		}
	}
	return batch, nil
}

// extractOne turns one downloaded document into a record. A panic in a
// text or field extractor fails only this report.
func (p *Pipeline) extractOne(ctx context.Context, w work) (rec *model.ExtractedRecord, outcome model.ReportOutcome, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.extract", trace.WithAttributes(attribute.String("url", w.cand.URL)))
	defer span.End()

	stage := model.StageText
	defer func() {
		if r := recover(); r != nil {
			perr := eris.Errorf("pipeline: %s panicked: %v", stage, r)
			zap.L().Error("pipeline: extraction panicked",
				zap.String("path", w.doc.Path),
				zap.String("stage", string(stage)),
				zap.Error(perr),
			)
			span.RecordError(perr)
			rec, outcome, err = nil, failed(w.cand, stage, perr), nil
		}
	}()

	text, err := p.deps.Text.ExtractText(ctx, w.doc.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.ReportOutcome{}, err
		}
		zap.L().Warn("pipeline: text extraction failed", zap.String("path", w.doc.Path), zap.Error(err))
		return nil, failed(w.cand, model.StageText, err), nil
	}
	if strings.TrimSpace(text) == "" {
		zap.L().Warn("pipeline: no text in document", zap.String("path", w.doc.Path))
		return nil, failed(w.cand, model.StageText, eris.New("no extractable text")), nil
	}

	stage = model.StageFields
	rec, err = p.deps.Fields.Extract(ctx, text, filepath.Base(w.doc.Path))
	if err != nil {
		return nil, model.ReportOutcome{}, err
	}
	if rec == nil {
		return nil, failed(w.cand, model.StageFields, eris.New("no fields extracted")), nil
	}

	rec.DocumentLink = w.cand.URL
	rec.ReportTitle = w.cand.Title
	rec.Category = w.cand.Category
	rec.FillMissing()

	return rec, model.ReportOutcome{Title: w.cand.Title, URL: w.cand.URL, Stage: model.StageDone, OK: true}, nil
}

// reconcile merges the batch into the stored dataset and appends the
// changelog. It is the only writer of the dataset.
func (p *Pipeline) reconcile(ctx context.Context, batch []model.ExtractedRecord, summary *model.RunSummary) error {
	_, span := tracer.Start(ctx, "pipeline.reconcile", trace.WithAttributes(attribute.Int("batch", len(batch))))
	defer span.End()

	if len(batch) == 0 {
		zap.L().Info("pipeline: no data to save")
		return nil
	}

	prior := dataset.LoadOrFresh(p.opts.DatasetPath)
	res := reconcile.Reconcile(prior, batch, p.now())

	if err := dataset.Save(p.opts.DatasetPath, res.Dataset); err != nil {
		span.RecordError(err)
		return eris.Wrap(err, "pipeline: save dataset")
	}
	if err := dataset.AppendChangelog(p.opts.ChangelogPath, res.Changes); err != nil {
		zap.L().Error("pipeline: append changelog", zap.Error(err))
	}

	summary.Added = res.Added
	summary.Updated = res.Updated
	summary.TotalRecords = res.Dataset.Len()
	summary.Changes = res.Changes
	return nil
}

func failed(c model.ReportCandidate, stage model.Stage, err error) model.ReportOutcome {
	return model.ReportOutcome{Title: c.Title, URL: c.URL, Stage: stage, Error: err.Error()}
}

func countFailed(outcomes []model.ReportOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK {
			n++
		}
	}
	return n
}

// openRun records the run in the ledger. Ledger failures never stop a
// harvest; the run proceeds with a local ID.
func (p *Pipeline) openRun(ctx context.Context) string {
	if p.deps.Store == nil {
		return uuid.NewString()
	}
	run, err := p.deps.Store.CreateRun(ctx)
	if err != nil {
		zap.L().Warn("pipeline: create run in ledger", zap.Error(err))
		return uuid.NewString()
	}
	return run.ID
}

// closeRun finalizes the ledger entry and flushes per-report outcomes in
// candidate order. It runs even when ctx has expired.
func (p *Pipeline) closeRun(ctx context.Context, summary *model.RunSummary, runErr error) {
	if p.deps.Store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("run_id", summary.RunID))

	for _, o := range summary.Outcomes {
		if err := p.deps.Store.RecordOutcome(ctx, summary.RunID, o); err != nil {
			log.Warn("pipeline: record outcome", zap.String("url", o.URL), zap.Error(err))
		}
	}

	var err error
	if runErr != nil {
		err = p.deps.Store.FailRun(ctx, summary.RunID, summary, runErr.Error())
	} else {
		err = p.deps.Store.CompleteRun(ctx, summary.RunID, summary)
	}
	if err != nil {
		log.Warn("pipeline: finalize run in ledger", zap.Error(err))
	}
}
