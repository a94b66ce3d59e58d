package ports

import (
	"context"
	"time"

	"EcoCart/internal/domain"
)

// Scraper extracts listing data from a product page URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (domain.ScrapedProduct, error)
}

// Rater asks the rating model for an eco-score of a listing.
type Rater interface {
	Rate(ctx context.Context, product domain.ScrapedProduct) (domain.EcoRating, error)
}

// ImageAnalyzer derives a product search query from an uploaded image.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageURL string) (string, error)
}

// AlternativeSearcher returns product candidates for a query, in service order.
type AlternativeSearcher interface {
	SearchAlternatives(ctx context.Context, query string) ([]domain.SearchCandidate, error)
}

// CatalogPublisher upserts rated products into the catalog collection.
type CatalogPublisher interface {
	Publish(ctx context.Context, records []domain.CatalogRecord) error
}

// RunLock guards one active run per session, possibly across processes.
type RunLock interface {
	Acquire(ctx context.Context, session, owner string, ttl time.Duration, steal bool) (bool, error)
	Release(ctx context.Context, session, owner string) error
}

// GatewayObserver receives one notification per remote call.
type GatewayObserver interface {
	ObserveGatewayCall(operation string, elapsed time.Duration, err error)
}

// RunObserver receives one notification per finished run.
type RunObserver interface {
	ObserveRun(result domain.PipelineResult)
}
