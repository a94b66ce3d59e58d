package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"EcoCart/internal/config"
	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
	"EcoCart/internal/ports"
)

var catalogColumns = []string{"name", "material", "rating", "link", "image", "description", "category", "price"}

// CatalogRepository upserts rated products into the catalog table, keyed by link.
type CatalogRepository struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

var _ ports.CatalogPublisher = (*CatalogRepository)(nil)

// Open connects to Postgres using the lib/pq driver.
func Open(ctx context.Context, cfg config.CatalogConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	return db, nil
}

// NewCatalogRepository wires a sql.DB implementation.
func NewCatalogRepository(db *sql.DB, table string, logger *slog.Logger) *CatalogRepository {
	if table == "" {
		table = "products"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CatalogRepository{db: db, table: table, logger: logger}
}

// Publish upserts records in one transaction. Within a batch the last record for a link wins.
func (r *CatalogRepository) Publish(ctx context.Context, records []domain.CatalogRecord) error {
	if r.db == nil || len(records) == 0 {
		return nil
	}

	records = dedupeByLink(records)
	links := make([]string, 0, len(records))
	for _, rec := range records {
		links = append(links, rec.Link)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewGatewayError(domain.OpCatalogUpsert, domain.ErrUpstream, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	known, err := r.knownLinks(ctx, tx, links)
	if err != nil {
		return domain.NewGatewayError(domain.OpCatalogUpsert, domain.ErrUpstream, err)
	}

	query, args, err := r.upsert(records).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.NewGatewayError(domain.OpCatalogUpsert, domain.ErrUpstream, fmt.Errorf("upsert products: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domain.NewGatewayError(domain.OpCatalogUpsert, domain.ErrUpstream, fmt.Errorf("commit: %w", err))
	}

	r.logger.Debug("catalog upserted", "inserted", len(records)-len(known), "refreshed", len(known))
	return nil
}

func (r *CatalogRepository) knownLinks(ctx context.Context, tx *sql.Tx, links []string) (map[string]bool, error) {
	query, args, err := sq.Select("link").
		From(pq.QuoteIdentifier(r.table)).
		Where("link = ANY(?)", pq.StringArray(links)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lookup: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known links: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(links))
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		known[link] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return known, nil
}

func (r *CatalogRepository) upsert(records []domain.CatalogRecord) sq.InsertBuilder {
	b := sq.Insert(pq.QuoteIdentifier(r.table)).
		Columns(catalogColumns...).
		PlaceholderFormat(sq.Dollar)
	for _, rec := range records {
		b = b.Values(rec.Name, rec.Material, rec.Rating, rec.Link, rec.Image, rec.Description, rec.Category, rec.Price)
	}
	return b.Suffix(`ON CONFLICT (link) DO UPDATE SET
		name = EXCLUDED.name,
		material = EXCLUDED.material,
		rating = EXCLUDED.rating,
		image = EXCLUDED.image,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		price = EXCLUDED.price`)
}

func dedupeByLink(records []domain.CatalogRecord) []domain.CatalogRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.CatalogRecord, 0, len(records))
	for _, rec := range records {
		if i, ok := index[rec.Link]; ok {
			out[i] = rec
			continue
		}
		index[rec.Link] = len(out)
		out = append(out, rec)
	}
	return out
}
