package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
	"EcoCart/internal/ports"
)

var (
	materialLabel = regexp.MustCompile(`(?i)^\s*(material|materials|fabric|composition)\s*:?\s*`)
	spaces        = regexp.MustCompile(`\s+`)
)

// ProductPageScraper fetches a product page directly and extracts listing fields from its HTML.
type ProductPageScraper struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ ports.Scraper = (*ProductPageScraper)(nil)

// NewProductPageScraper wires an HTTP client; a nil client gets a 20s timeout.
func NewProductPageScraper(client *http.Client, userAgent string, logger *slog.Logger) *ProductPageScraper {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "EcoCart/1.0"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ProductPageScraper{client: client, userAgent: userAgent, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *ProductPageScraper) Name() string {
	return "html"
}

// Scrape downloads pageURL and returns its title, material, price and image.
func (s *ProductPageScraper) Scrape(ctx context.Context, pageURL string) (domain.ScrapedProduct, error) {
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.ScrapedProduct{}, err
	}

	product := extractProduct(doc, pageURL)
	s.logger.Debug("parsed product page", "url", pageURL, "title", product.Title, "has_material", product.Material != "")

	if err := product.Validate(); err != nil {
		return domain.ScrapedProduct{}, domain.NewGatewayError(domain.OpScrape, domain.ErrInvalidResponse, err)
	}
	return product, nil
}

func (s *ProductPageScraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.NewGatewayError(domain.OpScrape, domain.ErrNetwork, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NewGatewayError(domain.OpScrape, domain.ErrNetwork, fmt.Errorf("request page: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewGatewayError(domain.OpScrape, domain.ErrUpstream, fmt.Errorf("page returned %s", resp.Status))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, domain.NewGatewayError(domain.OpScrape, domain.ErrInvalidResponse, fmt.Errorf("parse document: %w", err))
	}

	return doc, nil
}

func extractProduct(doc *goquery.Document, pageURL string) domain.ScrapedProduct {
	return domain.ScrapedProduct{
		Title:    extractTitle(doc),
		Material: extractMaterial(doc),
		Price:    extractPrice(doc),
		ImageURL: resolveURL(pageURL, metaContent(doc, `meta[property="og:image"]`, `meta[name="twitter:image"]`)),
	}
}

func extractTitle(doc *goquery.Document) string {
	if v := metaContent(doc, `meta[property="og:title"]`); v != "" {
		return v
	}
	if v := clean(doc.Find("h1").First().Text()); v != "" {
		return v
	}
	return clean(doc.Find("title").First().Text())
}

func extractMaterial(doc *goquery.Document) string {
	if v := clean(doc.Find(`[itemprop="material"]`).First().Text()); v != "" {
		return v
	}
	if v := metaContent(doc, `[itemprop="material"]`, `meta[property="product:material"]`); v != "" {
		return v
	}

	var material string
	// Definition lists and attribute tables: label cell followed by value cell.
	doc.Find("dt, th").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		if !materialLabel.MatchString(label.Text()) {
			return true
		}
		material = clean(label.Next().Text())
		return material == ""
	})
	if material != "" {
		return material
	}

	// Inline bullet points such as "Material: 100% cotton".
	doc.Find("li, p, span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := clean(sel.Text())
		loc := materialLabel.FindStringIndex(text)
		if loc == nil || loc[1] == len(text) || !strings.Contains(text[:loc[1]], ":") {
			return true
		}
		material = strings.TrimSpace(text[loc[1]:])
		return false
	})
	return material
}

func extractPrice(doc *goquery.Document) string {
	if sel := doc.Find(`[itemprop="price"]`).First(); sel.Length() > 0 {
		if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
			return withCurrency(doc, strings.TrimSpace(v))
		}
		if v := clean(sel.Text()); v != "" {
			return v
		}
	}
	if v := metaContent(doc, `meta[property="product:price:amount"]`, `meta[property="og:price:amount"]`); v != "" {
		return withCurrency(doc, v)
	}
	return clean(doc.Find(".price").First().Text())
}

func withCurrency(doc *goquery.Document, amount string) string {
	currency := metaContent(doc, `[itemprop="priceCurrency"]`, `meta[property="product:price:currency"]`, `meta[property="og:price:currency"]`)
	if currency == "" {
		return amount
	}
	return currency + " " + amount
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if v, ok := doc.Find(selector).First().Attr("content"); ok {
			if v = clean(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func clean(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
