package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EcoCart/internal/domain"
	"EcoCart/internal/progress"
)

// fakeGateway scripts all four remote operations and records the call shape.
type fakeGateway struct {
	mu sync.Mutex

	scrapes   map[string]domain.ScrapedProduct
	scrapeErr map[string]error
	ratings   map[string]domain.EcoRating // keyed by title
	rateErr   map[string]error
	delays    map[string]time.Duration // keyed by url

	imageQuery string
	imageErr   error

	search    map[string][]domain.SearchCandidate
	searchErr map[string]error

	calls   []string
	queries []string

	// onScrape runs before each scrape; tests use it to cancel mid-run.
	onScrape func(url string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		scrapes:   map[string]domain.ScrapedProduct{},
		scrapeErr: map[string]error{},
		ratings:   map[string]domain.EcoRating{},
		rateErr:   map[string]error{},
		delays:    map[string]time.Duration{},
		search:    map[string][]domain.SearchCandidate{},
		searchErr: map[string]error{},
	}
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) Scrape(ctx context.Context, url string) (domain.ScrapedProduct, error) {
	f.record("scrape")
	if f.onScrape != nil {
		f.onScrape(url)
	}
	if d := f.delays[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return domain.ScrapedProduct{}, domain.NewGatewayError(domain.OpScrape, domain.ErrNetwork, ctx.Err())
		}
	}
	if err := f.scrapeErr[url]; err != nil {
		return domain.ScrapedProduct{}, err
	}
	p, ok := f.scrapes[url]
	if !ok {
		return domain.ScrapedProduct{}, domain.NewGatewayError(domain.OpScrape, domain.ErrUpstream, fmt.Errorf("unknown url %s", url))
	}
	if err := p.Validate(); err != nil {
		return domain.ScrapedProduct{}, domain.NewGatewayError(domain.OpScrape, domain.ErrInvalidResponse, err)
	}
	return p, nil
}

func (f *fakeGateway) Rate(ctx context.Context, product domain.ScrapedProduct) (domain.EcoRating, error) {
	f.record("rate")
	if err := f.rateErr[product.Title]; err != nil {
		return domain.EcoRating{}, err
	}
	return f.ratings[product.Title], nil
}

func (f *fakeGateway) AnalyzeImage(ctx context.Context, imageURL string) (string, error) {
	f.record("analyze_image")
	return f.imageQuery, f.imageErr
}

func (f *fakeGateway) SearchAlternatives(ctx context.Context, query string) ([]domain.SearchCandidate, error) {
	f.record("search")
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.search[query], nil
}

func newTestPipeline(gw *fakeGateway, settings Settings) *Pipeline {
	return NewPipeline(PipelineDeps{
		Scraper:       gw,
		Rater:         gw,
		ImageAnalyzer: gw,
		Searcher:      gw,
		Settings:      settings,
	})
}

// addProduct registers a scrapeable product and its rating.
func (f *fakeGateway) addProduct(url, title, material string, score int, category string) {
	f.scrapes[url] = domain.ScrapedProduct{Title: title, Material: material, Price: "$10"}
	f.ratings[title] = domain.EcoRating{Score: score, Description: title + " rated", Category: category}
}

func (f *fakeGateway) addCandidates(query string, n int) []string {
	links := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		link := fmt.Sprintf("https://alt.example/%s/%d", query, i)
		links = append(links, link)
		f.search[query] = append(f.search[query], domain.SearchCandidate{Link: link})
		f.addProduct(link, fmt.Sprintf("%s alt %d", query, i), "recycled", 4, "")
	}
	return links
}

func stages(events []domain.ProgressEvent) []domain.Stage {
	out := make([]domain.Stage, 0, len(events))
	for _, e := range events {
		out = append(out, e.Stage)
	}
	return out
}

func TestEcoFriendlyProductSkipsAlternatives(t *testing.T) {
	gw := newFakeGateway()
	gw.scrapes["https://shop.example/tee"] = domain.ScrapedProduct{Title: "Cotton Tee", Material: "organic cotton", Price: "$20"}
	gw.ratings["Cotton Tee"] = domain.EcoRating{Score: 4}

	reporter := progress.NewReporter()
	result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{URL: "https://shop.example/tee"},
		Reporter:  reporter,
	})

	require.Equal(t, domain.StatusCompleted, result.Status)
	require.NotNil(t, result.Primary)
	assert.Equal(t, 4, result.Primary.Rating)
	assert.Equal(t, "https://shop.example/tee", result.Primary.Link)
	assert.Empty(t, result.Alternatives)
	assert.Equal(t, []string{"scrape", "rate"}, gw.Calls())
	assert.Equal(t, []domain.Stage{
		domain.StageScraping,
		domain.StageRating,
		domain.StageEcoFriendly,
		domain.StageCompleted,
	}, stages(reporter.Events()))
}

func TestThresholdBoundary(t *testing.T) {
	for score := 0; score <= domain.MaxScore; score++ {
		score := score
		t.Run(fmt.Sprintf("score_%d", score), func(t *testing.T) {
			gw := newFakeGateway()
			gw.addProduct("https://shop.example/p", "Product", "mixed", score, "things")
			gw.addCandidates("things", 2)

			result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
				Reference: domain.ProductReference{URL: "https://shop.example/p"},
			})

			require.Equal(t, domain.StatusCompleted, result.Status)
			require.NotNil(t, result.Primary)
			assert.Equal(t, score, result.Primary.Rating)
			if score >= 3 {
				assert.Empty(t, result.Alternatives)
				assert.Empty(t, gw.queries)
			} else {
				assert.Equal(t, []string{"things"}, gw.queries)
				assert.Len(t, result.Alternatives, 2)
			}
		})
	}
}

func TestLowScoreGathersFirstThreeAlternativesInOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.scrapes["https://shop.example/jacket"] = domain.ScrapedProduct{Title: "Vinyl Jacket", Material: "PVC", Price: "$40"}
	gw.ratings["Vinyl Jacket"] = domain.EcoRating{Score: 1, Category: "jackets"}
	links := gw.addCandidates("jackets", 5)

	reporter := progress.NewReporter()
	result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		Reporter:  reporter,
	})

	require.Equal(t, domain.StatusCompleted, result.Status)
	require.NotNil(t, result.Primary)
	assert.Equal(t, 1, result.Primary.Rating)
	require.Len(t, result.Alternatives, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, links[i], result.Alternatives[i].Link)
		assert.Equal(t, 4, result.Alternatives[i].Rating)
	}
	assert.Equal(t, []string{"jackets"}, gw.queries)
	assert.Equal(t, []string{
		"scrape", "rate", "search",
		"scrape", "rate",
		"scrape", "rate",
		"scrape", "rate",
	}, gw.Calls())
	assert.Equal(t, []domain.Stage{
		domain.StageScraping,
		domain.StageRating,
		domain.StageSearchingAlternatives,
		domain.StageScrapingAlternative, domain.StageRatingAlternative,
		domain.StageScrapingAlternative, domain.StageRatingAlternative,
		domain.StageScrapingAlternative, domain.StageRatingAlternative,
		domain.StageCompleted,
	}, stages(reporter.Events()))
}

func TestEmptySearchCompletesWithoutAlternatives(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	gw.searchErr["jackets"] = domain.NewGatewayError(domain.OpSearch, domain.ErrEmptyResult, nil)

	result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
	})

	require.Equal(t, domain.StatusCompleted, result.Status)
	require.NotNil(t, result.Primary)
	assert.Equal(t, 1, result.Primary.Rating)
	assert.NotNil(t, result.Alternatives)
	assert.Empty(t, result.Alternatives)
}

func TestSearchFailureKeepsPrimary(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	gw.searchErr["jackets"] = domain.NewGatewayError(domain.OpSearch, domain.ErrUpstream, fmt.Errorf("503"))

	reporter := progress.NewReporter()
	result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		Reporter:  reporter,
	})

	require.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.ReasonAlternativeSearchFailed, result.Reason)
	require.NotNil(t, result.Primary)
	last, ok := reporter.Last()
	require.True(t, ok)
	assert.Equal(t, domain.StageFailed, last.Stage)
	assert.NotEmpty(t, last.Message)
}

func TestMissingProductData(t *testing.T) {
	cases := map[string]domain.ScrapedProduct{
		"missing material": {Title: "Vinyl Jacket", Price: "$40"},
		"missing title":    {Material: "PVC"},
	}
	for name, scraped := range cases {
		scraped := scraped
		t.Run(name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.scrapes["https://shop.example/x"] = scraped

			reporter := progress.NewReporter()
			result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
				Reference: domain.ProductReference{URL: "https://shop.example/x"},
				Reporter:  reporter,
			})

			assert.Equal(t, domain.StatusFailed, result.Status)
			assert.Equal(t, domain.ReasonMissingProductData, result.Reason)
			assert.Nil(t, result.Primary)
			assert.Empty(t, result.Alternatives)
			assert.Equal(t, []string{"scrape"}, gw.Calls())
			assert.Equal(t, []domain.Stage{domain.StageScraping, domain.StageFailed}, stages(reporter.Events()))
		})
	}
}

func TestPrimaryFailureReasons(t *testing.T) {
	t.Run("scrape network", func(t *testing.T) {
		gw := newFakeGateway()
		gw.scrapeErr["https://shop.example/x"] = domain.NewGatewayError(domain.OpScrape, domain.ErrNetwork, fmt.Errorf("dial tcp"))
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/x"},
		})
		assert.Equal(t, domain.ReasonScrapeFailed, result.Reason)
	})

	t.Run("invalid rating", func(t *testing.T) {
		gw := newFakeGateway()
		gw.addProduct("https://shop.example/x", "Tee", "cotton", 0, "")
		gw.rateErr["Tee"] = domain.NewGatewayError(domain.OpRate, domain.ErrInvalidResponse, fmt.Errorf("rating \"great\" is not numeric"))
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/x"},
		})
		assert.Equal(t, domain.ReasonInvalidRating, result.Reason)
		assert.Nil(t, result.Primary)
	})

	t.Run("rating upstream", func(t *testing.T) {
		gw := newFakeGateway()
		gw.addProduct("https://shop.example/x", "Tee", "cotton", 0, "")
		gw.rateErr["Tee"] = domain.NewGatewayError(domain.OpRate, domain.ErrUpstream, fmt.Errorf("500"))
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/x"},
		})
		assert.Equal(t, domain.ReasonRatingFailed, result.Reason)
	})

	t.Run("missing category", func(t *testing.T) {
		gw := newFakeGateway()
		gw.addProduct("https://shop.example/x", "Tee", "polyester", 1, "")
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/x"},
		})
		assert.Equal(t, domain.ReasonMissingCategory, result.Reason)
		assert.Empty(t, gw.queries)
		require.NotNil(t, result.Primary)
		assert.Equal(t, "Tee", result.Primary.Title)
		assert.Equal(t, 1, result.Primary.Rating)
	})

	t.Run("invalid reference", func(t *testing.T) {
		gw := newFakeGateway()
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://a", ImageURI: "https://b"},
		})
		assert.Equal(t, domain.ReasonInvalidReference, result.Reason)
		assert.Empty(t, gw.Calls())
	})
}

func TestNegativeAlternativeCapFallsBackToDefault(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	gw.addCandidates("jackets", 5)

	settings := DefaultSettings()
	settings.AlternativeCap = -1
	settings.Threshold = 9

	var result domain.PipelineResult
	require.NotPanics(t, func() {
		result = newTestPipeline(gw, settings).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		})
	})
	assert.Equal(t, domain.StatusCompleted, result.Status)
	assert.Len(t, result.Alternatives, DefaultSettings().AlternativeCap)
}

func TestAlternativeFailurePolicies(t *testing.T) {
	setup := func() (*fakeGateway, []string) {
		gw := newFakeGateway()
		gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
		links := gw.addCandidates("jackets", 4)
		gw.scrapeErr[links[1]] = domain.NewGatewayError(domain.OpScrape, domain.ErrNetwork, fmt.Errorf("timeout"))
		return gw, links
	}

	t.Run("skip", func(t *testing.T) {
		gw, links := setup()
		settings := DefaultSettings()
		settings.OnAlternativeFailure = domain.AlternativeSkip

		result := newTestPipeline(gw, settings).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		})

		require.Equal(t, domain.StatusCompleted, result.Status)
		require.Len(t, result.Alternatives, 2)
		assert.Equal(t, links[0], result.Alternatives[0].Link)
		assert.Equal(t, links[2], result.Alternatives[1].Link)
	})

	t.Run("abort", func(t *testing.T) {
		gw, links := setup()
		settings := DefaultSettings()
		settings.OnAlternativeFailure = domain.AlternativeAbort

		reporter := progress.NewReporter()
		result := newTestPipeline(gw, settings).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
			Reporter:  reporter,
		})

		require.Equal(t, domain.StatusCompleted, result.Status)
		require.Len(t, result.Alternatives, 1)
		assert.Equal(t, links[0], result.Alternatives[0].Link)
		assert.Equal(t, []string{"scrape", "rate", "search", "scrape", "rate", "scrape"}, gw.Calls())

		events := reporter.Events()
		require.GreaterOrEqual(t, len(events), 2)
		assert.Equal(t, domain.StageScrapingAlternative, events[len(events)-2].Stage)
		assert.Contains(t, events[len(events)-2].Message, "stopping")
		assert.Equal(t, domain.StageCompleted, events[len(events)-1].Stage)
	})

	t.Run("rating failure is scoped to the candidate", func(t *testing.T) {
		gw := newFakeGateway()
		gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
		gw.addCandidates("jackets", 3)
		gw.rateErr["jackets alt 1"] = domain.NewGatewayError(domain.OpRate, domain.ErrInvalidResponse, fmt.Errorf("bad score"))

		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		})

		require.Equal(t, domain.StatusCompleted, result.Status)
		assert.Len(t, result.Alternatives, 2)
	})
}

func TestParallelAlternativesKeepSearchOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	links := gw.addCandidates("jackets", 3)
	// First candidate is the slowest, last is the fastest.
	gw.delays[links[0]] = 60 * time.Millisecond
	gw.delays[links[1]] = 30 * time.Millisecond

	settings := DefaultSettings()
	settings.Parallelism = 3

	reporter := progress.NewReporter()
	result := newTestPipeline(gw, settings).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		Reporter:  reporter,
	})

	require.Equal(t, domain.StatusCompleted, result.Status)
	require.Len(t, result.Alternatives, 3)
	for i := range links {
		assert.Equal(t, links[i], result.Alternatives[i].Link)
	}
	assert.Equal(t, []domain.Stage{
		domain.StageScraping,
		domain.StageRating,
		domain.StageSearchingAlternatives,
		domain.StageScrapingAlternative, domain.StageRatingAlternative,
		domain.StageScrapingAlternative, domain.StageRatingAlternative,
		domain.StageScrapingAlternative, domain.StageRatingAlternative,
		domain.StageCompleted,
	}, stages(reporter.Events()))
}

func TestParallelAbortKeepsPrefix(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	links := gw.addCandidates("jackets", 3)
	gw.delays[links[0]] = 30 * time.Millisecond
	gw.scrapeErr[links[1]] = domain.NewGatewayError(domain.OpScrape, domain.ErrUpstream, fmt.Errorf("403"))

	settings := DefaultSettings()
	settings.Parallelism = 3
	settings.OnAlternativeFailure = domain.AlternativeAbort

	result := newTestPipeline(gw, settings).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
	})

	require.Equal(t, domain.StatusCompleted, result.Status)
	require.Len(t, result.Alternatives, 1)
	assert.Equal(t, links[0], result.Alternatives[0].Link)
}

func TestImageReferenceMergesIntoScraping(t *testing.T) {
	gw := newFakeGateway()
	gw.imageQuery = "steel bottle"
	gw.search["steel bottle"] = []domain.SearchCandidate{{Link: "https://shop.example/bottle"}, {Link: "https://shop.example/other"}}
	gw.addProduct("https://shop.example/bottle", "Steel Bottle", "stainless steel", 5, "")

	reporter := progress.NewReporter()
	result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
		Reference: domain.ProductReference{ImageURI: "https://img.example/bottle.jpg"},
		Reporter:  reporter,
	})

	require.Equal(t, domain.StatusCompleted, result.Status)
	require.NotNil(t, result.Primary)
	assert.Equal(t, "https://shop.example/bottle", result.Primary.Link)
	assert.Equal(t, []string{"analyze_image", "search", "scrape", "rate"}, gw.Calls())
	assert.Equal(t, domain.StageResolvingImage, reporter.Events()[0].Stage)
}

func TestImageReferenceFailures(t *testing.T) {
	t.Run("analysis", func(t *testing.T) {
		gw := newFakeGateway()
		gw.imageErr = domain.NewGatewayError(domain.OpAnalyzeImage, domain.ErrUpstream, fmt.Errorf("500"))
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{ImageURI: "https://img.example/x.jpg"},
		})
		assert.Equal(t, domain.ReasonImageAnalysisFailed, result.Reason)
	})

	t.Run("no results", func(t *testing.T) {
		gw := newFakeGateway()
		gw.imageQuery = "unknown gadget"
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{ImageURI: "https://img.example/x.jpg"},
		})
		assert.Equal(t, domain.StatusFailed, result.Status)
		assert.Equal(t, domain.ReasonNoSearchResults, result.Reason)
	})

	t.Run("search error", func(t *testing.T) {
		gw := newFakeGateway()
		gw.imageQuery = "gadget"
		gw.searchErr["gadget"] = domain.NewGatewayError(domain.OpSearch, domain.ErrNetwork, fmt.Errorf("reset"))
		result := newTestPipeline(gw, DefaultSettings()).Analyze(context.Background(), Request{
			Reference: domain.ProductReference{ImageURI: "https://img.example/x.jpg"},
		})
		assert.Equal(t, domain.ReasonImageSearchFailed, result.Reason)
	})
}

func TestCancellationStopsNarrationAndDropsState(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	links := gw.addCandidates("jackets", 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.onScrape = func(url string) {
		if url == links[1] {
			cancel()
		}
	}
	gw.delays[links[1]] = time.Second

	reporter := progress.NewReporter()
	result := newTestPipeline(gw, DefaultSettings()).Analyze(ctx, Request{
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
		Reporter:  reporter,
	})

	assert.Equal(t, domain.StatusFailed, result.Status)
	assert.Equal(t, domain.ReasonCancelled, result.Reason)
	assert.Nil(t, result.Primary)
	assert.Empty(t, result.Alternatives)

	last, ok := reporter.Last()
	require.True(t, ok)
	assert.Equal(t, domain.StageScrapingAlternative, last.Stage)
	assert.NotEqual(t, domain.StageFailed, last.Stage)
}

func TestRepeatedRunsIssueSameCallShape(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 2, "jackets")
	gw.addCandidates("jackets", 4)
	pipeline := newTestPipeline(gw, DefaultSettings())

	ref := domain.ProductReference{URL: "https://shop.example/jacket"}
	pipeline.Analyze(context.Background(), Request{Reference: ref})
	first := gw.Calls()
	gw.calls = nil
	pipeline.Analyze(context.Background(), Request{Reference: ref})

	assert.Equal(t, first, gw.Calls())
}

type recordingCatalog struct {
	records []domain.CatalogRecord
	err     error
}

func (c *recordingCatalog) Publish(ctx context.Context, records []domain.CatalogRecord) error {
	c.records = append(c.records, records...)
	return c.err
}

type recordingRunObserver struct {
	results []domain.PipelineResult
}

func (o *recordingRunObserver) ObserveRun(result domain.PipelineResult) {
	o.results = append(o.results, result)
}

func TestCompletedRunsArePublishedAndObserved(t *testing.T) {
	gw := newFakeGateway()
	gw.addProduct("https://shop.example/jacket", "Vinyl Jacket", "PVC", 1, "jackets")
	gw.addCandidates("jackets", 2)

	catalog := &recordingCatalog{err: fmt.Errorf("db down")}
	observer := &recordingRunObserver{}
	pipeline := NewPipeline(PipelineDeps{
		Scraper:  gw,
		Rater:    gw,
		Searcher: gw,
		Catalog:  catalog,
		Observer: observer,
		Settings: DefaultSettings(),
	})

	result := pipeline.Analyze(context.Background(), Request{
		RunID:     "run-1",
		Reference: domain.ProductReference{URL: "https://shop.example/jacket"},
	})

	require.Equal(t, domain.StatusCompleted, result.Status, "publish failure must not change the result")
	assert.Equal(t, "run-1", result.RunID)
	require.Len(t, catalog.records, 3)
	assert.Equal(t, "Vinyl Jacket", catalog.records[0].Name)
	assert.Equal(t, 1, catalog.records[0].Rating)
	require.Len(t, observer.results, 1)
	assert.Equal(t, domain.StatusCompleted, observer.results[0].Status)
}
