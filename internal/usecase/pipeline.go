package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"EcoCart/internal/config"
	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
	"EcoCart/internal/ports"
	"EcoCart/internal/progress"
)

// Settings are the orchestrator tunables that survive across runs.
type Settings struct {
	Threshold            int
	AlternativeCap       int
	OnAlternativeFailure domain.AlternativeFailurePolicy
	// Parallelism above 1 evaluates alternative candidates concurrently; results
	// are still appended in search order.
	Parallelism int
}

// DefaultSettings mirrors the shipped configuration.
func DefaultSettings() Settings {
	return Settings{
		Threshold:            3,
		AlternativeCap:       3,
		OnAlternativeFailure: domain.AlternativeSkip,
		Parallelism:          1,
	}
}

// SettingsFromConfig maps the pipeline config section.
func SettingsFromConfig(cfg config.PipelineConfig) Settings {
	return Settings{
		Threshold:            cfg.Threshold,
		AlternativeCap:       cfg.AlternativeCap,
		OnAlternativeFailure: cfg.OnAlternativeFailure,
		Parallelism:          cfg.Parallelism,
	}
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Scraper       ports.Scraper
	Rater         ports.Rater
	ImageAnalyzer ports.ImageAnalyzer
	Searcher      ports.AlternativeSearcher
	Catalog       ports.CatalogPublisher
	Observer      ports.RunObserver
	Settings      Settings
	Logger        *slog.Logger
}

// Pipeline implements the product sustainability workflow.
type Pipeline struct {
	scraper       ports.Scraper
	rater         ports.Rater
	imageAnalyzer ports.ImageAnalyzer
	searcher      ports.AlternativeSearcher
	catalog       ports.CatalogPublisher
	observer      ports.RunObserver
	settings      Settings
	logger        *slog.Logger
	now           func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	settings := deps.Settings
	defaults := DefaultSettings()
	if settings.Threshold < 0 || settings.Threshold > domain.MaxScore {
		settings.Threshold = defaults.Threshold
	}
	if settings.AlternativeCap < 0 {
		settings.AlternativeCap = defaults.AlternativeCap
	}
	if settings.Parallelism < 1 {
		settings.Parallelism = 1
	}
	if settings.OnAlternativeFailure == "" {
		settings.OnAlternativeFailure = domain.AlternativeSkip
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		scraper:       deps.Scraper,
		rater:         deps.Rater,
		imageAnalyzer: deps.ImageAnalyzer,
		searcher:      deps.Searcher,
		catalog:       deps.Catalog,
		observer:      deps.Observer,
		settings:      settings,
		logger:        logger,
		now:           time.Now,
	}
}

// Request is one pipeline invocation. A nil Reporter gets a private one.
type Request struct {
	RunID     string
	Reference domain.ProductReference
	Reporter  *progress.Reporter
}

// Analyze drives a run from Idle to Completed or Failed and returns the final snapshot.
// Cancelling ctx ends the run as Failed/Cancelled without further progress events.
func (p *Pipeline) Analyze(ctx context.Context, req Request) domain.PipelineResult {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Reporter == nil {
		req.Reporter = progress.NewReporter()
	}

	r := &run{
		p:        p,
		id:       req.RunID,
		ref:      req.Reference,
		reporter: req.Reporter,
		agg:      NewResultAggregator(p.settings.AlternativeCap),
		stage:    domain.StageIdle,
		started:  p.now().UTC(),
		logger:   p.logger.With("run_id", req.RunID),
	}

	result := r.execute(ctx)

	if p.observer != nil {
		p.observer.ObserveRun(result)
	}
	if result.Status == domain.StatusCompleted {
		p.publish(ctx, r.logger, result)
	}
	return result
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, result domain.PipelineResult) {
	if p.catalog == nil {
		return
	}
	records := make([]domain.CatalogRecord, 0, len(result.Alternatives)+1)
	if result.Primary != nil {
		records = append(records, result.Primary.CatalogRecord())
	}
	for _, alt := range result.Alternatives {
		records = append(records, alt.CatalogRecord())
	}
	if len(records) == 0 {
		return
	}
	if err := p.catalog.Publish(ctx, records); err != nil {
		logger.Warn("catalog publish failed", "records", len(records), "error", err)
		return
	}
	logger.Debug("catalog updated", "records", len(records))
}

// run is the exclusively owned state of a single pipeline execution.
type run struct {
	p        *Pipeline
	id       string
	ref      domain.ProductReference
	reporter *progress.Reporter
	agg      *ResultAggregator
	stage    domain.Stage
	started  time.Time
	logger   *slog.Logger
}

// errCancelled marks a run stopped by its context; it never reaches callers.
var errCancelled = errors.New("run cancelled")

func (r *run) execute(ctx context.Context) domain.PipelineResult {
	if err := r.ref.Validate(); err != nil {
		return r.fail(domain.ReasonInvalidReference, err, "Invalid product reference.")
	}
	if r.p.scraper == nil || r.p.rater == nil {
		return r.fail(domain.ReasonScrapeFailed, errors.New("scraper or rater is not configured"), "Pipeline is not configured.")
	}

	r.logger.Info("pipeline started", "url", r.ref.URL, "image", r.ref.ImageURI)

	link := r.ref.URL
	if r.ref.IsImage() {
		resolved, result, ok := r.resolveImage(ctx)
		if !ok {
			return result
		}
		link = resolved
	}

	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	r.transition(domain.StageScraping, "Scraping product data from %s...", link)
	scraped, err := r.p.scraper.Scrape(ctx, link)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		if errors.Is(err, domain.ErrInvalidResponse) {
			return r.fail(domain.ReasonMissingProductData, err, "Failed to fetch product data: title or material is missing.")
		}
		return r.fail(domain.ReasonScrapeFailed, err, "Network error during scraping.")
	}

	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	r.transition(domain.StageRating, "Analyzing eco-score of %q...", scraped.Title)
	rating, err := r.p.rater.Rate(ctx, scraped)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		if errors.Is(err, domain.ErrInvalidResponse) {
			return r.fail(domain.ReasonInvalidRating, err, "Rating service returned an unusable score.")
		}
		return r.fail(domain.ReasonRatingFailed, err, "Error during eco-score analysis.")
	}

	primary := domain.NewRatedProduct(link, scraped, rating)

	_ = r.agg.SetPrimary(primary)

	if rating.Score >= r.p.settings.Threshold {
		r.transition(domain.StageEcoFriendly, "Product is eco-friendly (score %d/%d).", rating.Score, domain.MaxScore)
		return r.complete("Analysis complete.")
	}

	// A low-rated primary stays in the result even when no search can follow.
	if rating.Category == "" {
		return r.fail(domain.ReasonMissingCategory, fmt.Errorf("%w: category missing for score %d", domain.ErrInvalidResponse, rating.Score), "Rating service did not name a product category to search.")
	}

	return r.sourceAlternatives(ctx, rating.Category, rating.Score)
}

// resolveImage turns an image reference into the URL of the top search result.
func (r *run) resolveImage(ctx context.Context) (string, domain.PipelineResult, bool) {
	if r.p.imageAnalyzer == nil || r.p.searcher == nil {
		return "", r.fail(domain.ReasonImageAnalysisFailed, errors.New("image analysis is not configured"), "Image analysis is unavailable."), false
	}

	if ctx.Err() != nil {
		return "", r.cancel(ctx), false
	}
	r.transition(domain.StageResolvingImage, "Identifying the product in the image...")

	query, err := r.p.imageAnalyzer.AnalyzeImage(ctx, r.ref.ImageURI)
	if err != nil {
		if ctx.Err() != nil {
			return "", r.cancel(ctx), false
		}
		return "", r.fail(domain.ReasonImageAnalysisFailed, err, "Image analysis failed."), false
	}
	r.logger.Debug("image resolved to query", "query", query)

	if ctx.Err() != nil {
		return "", r.cancel(ctx), false
	}
	candidates, err := r.p.searcher.SearchAlternatives(ctx, query)
	if err == nil && len(candidates) == 0 {
		err = domain.NewGatewayError(domain.OpSearch, domain.ErrEmptyResult, fmt.Errorf("no products for %q", query))
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", r.cancel(ctx), false
		}
		if errors.Is(err, domain.ErrEmptyResult) {
			return "", r.fail(domain.ReasonNoSearchResults, err, fmt.Sprintf("No products found for %q.", query)), false
		}
		return "", r.fail(domain.ReasonImageSearchFailed, err, "Product search failed."), false
	}

	return candidates[0].Link, domain.PipelineResult{}, true
}

func (r *run) sourceAlternatives(ctx context.Context, category string, score int) domain.PipelineResult {
	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	r.transition(domain.StageSearchingAlternatives, "Score %d/%d is below %d. Searching for better alternatives in %q...", score, domain.MaxScore, r.p.settings.Threshold, category)

	if r.p.settings.AlternativeCap == 0 || r.p.searcher == nil {
		return r.complete("Alternative search is disabled.")
	}

	candidates, err := r.p.searcher.SearchAlternatives(ctx, category)
	if err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		if errors.Is(err, domain.ErrEmptyResult) {
			return r.complete("No alternatives found.")
		}
		return r.fail(domain.ReasonAlternativeSearchFailed, err, "Error fetching alternatives.")
	}
	if len(candidates) == 0 {
		return r.complete("No alternatives found.")
	}
	if len(candidates) > r.p.settings.AlternativeCap {
		candidates = candidates[:r.p.settings.AlternativeCap]
	}

	var gatherErr error
	if r.p.settings.Parallelism > 1 && len(candidates) > 1 {
		gatherErr = r.gatherParallel(ctx, candidates)
	} else {
		gatherErr = r.gatherSequential(ctx, candidates)
	}
	if errors.Is(gatherErr, errCancelled) {
		return r.cancel(ctx)
	}

	return r.complete(fmt.Sprintf("Alternatives fetched: %d of %d candidates.", r.agg.Len(), len(candidates)))
}

// outcome is what evaluating one candidate produced.
type outcome struct {
	product  domain.RatedProduct
	failedAt domain.Stage
	err      error
}

func (r *run) gatherSequential(ctx context.Context, candidates []domain.SearchCandidate) error {
	total := len(candidates)
	for i, candidate := range candidates {
		if ctx.Err() != nil {
			return errCancelled
		}
		r.transition(domain.StageScrapingAlternative, "Scraping alternative %d/%d: %s", i+1, total, candidate.Link)
		scraped, err := r.p.scraper.Scrape(ctx, candidate.Link)
		if err != nil {
			if ctx.Err() != nil {
				return errCancelled
			}
			if r.candidateFailed(i, total, outcome{failedAt: domain.StageScrapingAlternative, err: err}) {
				return nil
			}
			continue
		}

		if ctx.Err() != nil {
			return errCancelled
		}
		r.transition(domain.StageRatingAlternative, "Rating alternative %d/%d: %q", i+1, total, scraped.Title)
		rating, err := r.p.rater.Rate(ctx, scraped)
		if err != nil {
			if ctx.Err() != nil {
				return errCancelled
			}
			if r.candidateFailed(i, total, outcome{failedAt: domain.StageRatingAlternative, err: err}) {
				return nil
			}
			continue
		}

		r.agg.AppendAlternative(domain.NewRatedProduct(candidate.Link, scraped, rating))
	}
	return nil
}

// gatherParallel evaluates candidates concurrently and then replays their
// outcomes in search order, so events and alternatives keep discovery order.
func (r *run) gatherParallel(ctx context.Context, candidates []domain.SearchCandidate) error {
	outcomes := make([]outcome, len(candidates))
	ctxs := make([]context.Context, len(candidates))
	cancels := make([]context.CancelFunc, len(candidates))
	for i := range candidates {
		ctxs[i], cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	var g errgroup.Group
	g.SetLimit(r.p.settings.Parallelism)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			outcomes[i] = r.evaluate(ctxs[i], candidate)
			if outcomes[i].err != nil && r.p.settings.OnAlternativeFailure == domain.AlternativeAbort {
				// Later candidates will be discarded anyway.
				for _, cancel := range cancels[i+1:] {
					cancel()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return errCancelled
	}

	total := len(candidates)
	for i, candidate := range candidates {
		o := outcomes[i]
		r.transition(domain.StageScrapingAlternative, "Scraping alternative %d/%d: %s", i+1, total, candidate.Link)
		if o.err == nil || o.failedAt == domain.StageRatingAlternative {
			r.transition(domain.StageRatingAlternative, "Rating alternative %d/%d: %q", i+1, total, o.product.Title)
		}
		if o.err != nil {
			if r.candidateFailed(i, total, o) {
				return nil
			}
			continue
		}
		r.agg.AppendAlternative(o.product)
	}
	return nil
}

func (r *run) evaluate(ctx context.Context, candidate domain.SearchCandidate) outcome {
	scraped, err := r.p.scraper.Scrape(ctx, candidate.Link)
	if err != nil {
		return outcome{failedAt: domain.StageScrapingAlternative, err: err}
	}
	rating, err := r.p.rater.Rate(ctx, scraped)
	if err != nil {
		// Keep the title so the replayed narration can name the candidate.
		return outcome{product: domain.RatedProduct{Title: scraped.Title, Link: candidate.Link}, failedAt: domain.StageRatingAlternative, err: err}
	}
	return outcome{product: domain.NewRatedProduct(candidate.Link, scraped, rating)}
}

// candidateFailed narrates a failed candidate and reports whether the loop must stop.
func (r *run) candidateFailed(i, total int, o outcome) bool {
	r.logger.Warn("alternative failed", "index", i, "stage", o.failedAt, "kind", domain.ErrorKind(o.err), "error", o.err)
	if r.p.settings.OnAlternativeFailure == domain.AlternativeAbort {
		r.reporter.Emitf(o.failedAt, "Alternative %d/%d failed (%s); stopping the alternative search.", i+1, total, domain.ErrorKind(o.err))
		return true
	}
	r.reporter.Emitf(o.failedAt, "Alternative %d/%d failed (%s); skipping it.", i+1, total, domain.ErrorKind(o.err))
	return false
}

func (r *run) transition(stage domain.Stage, format string, args ...any) {
	r.stage = stage
	r.reporter.Emitf(stage, format, args...)
}

func (r *run) complete(message string) domain.PipelineResult {
	r.transition(domain.StageCompleted, "%s", message)
	result := r.snapshot(domain.StatusCompleted, domain.ReasonNone, "")
	r.logger.Info("pipeline completed", "alternatives", len(result.Alternatives), "has_primary", result.Primary != nil)
	return result
}

func (r *run) fail(reason domain.FailureReason, err error, message string) domain.PipelineResult {
	failedAt := r.stage
	r.transition(domain.StageFailed, "%s", message)
	r.logger.Warn("pipeline failed", "stage", failedAt, "reason", reason, "error", err)

	detail := message
	if err != nil {
		detail = fmt.Sprintf("%s (%v)", message, err)
	}
	return r.snapshot(domain.StatusFailed, reason, detail)
}

// cancel releases partial state and ends the run silently.
func (r *run) cancel(ctx context.Context) domain.PipelineResult {
	r.reporter.Close()
	r.agg.Reset()
	r.logger.Info("pipeline cancelled", "stage", r.stage, "error", ctx.Err())
	r.stage = domain.StageFailed
	return r.snapshot(domain.StatusFailed, domain.ReasonCancelled, fmt.Sprintf("run cancelled: %v", ctx.Err()))
}

func (r *run) snapshot(status domain.RunStatus, reason domain.FailureReason, message string) domain.PipelineResult {
	return r.agg.Snapshot(domain.PipelineResult{
		RunID:      r.id,
		Reference:  r.ref,
		Status:     status,
		Reason:     reason,
		Message:    message,
		StartedAt:  r.started,
		FinishedAt: r.p.now().UTC(),
	})
}
