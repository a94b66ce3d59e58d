package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"EcoCart/internal/domain"
)

type scrapeResponse struct {
	Title    string `json:"title"`
	Material string `json:"material"`
	Price    any    `json:"price"`
	ImageURL string `json:"image_url"`
}

type rateResponse struct {
	Rating      json.RawMessage `json:"rating"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
}

type imageResponse struct {
	Product string `json:"product"`
}

type searchResponse struct {
	Products []domain.SearchCandidate `json:"products"`
}

// Scrape asks the relay for the listing behind url.
func (c *Client) Scrape(ctx context.Context, url string) (domain.ScrapedProduct, error) {
	var resp scrapeResponse
	if err := c.post(ctx, domain.OpScrape, c.endpoints.scrape, map[string]string{"url": url}, scrapeSchema, &resp); err != nil {
		return domain.ScrapedProduct{}, err
	}

	product := domain.ScrapedProduct{
		Title:    strings.TrimSpace(resp.Title),
		Material: strings.TrimSpace(resp.Material),
		Price:    priceString(resp.Price),
		ImageURL: strings.TrimSpace(resp.ImageURL),
	}
	if err := product.Validate(); err != nil {
		return domain.ScrapedProduct{}, domain.NewGatewayError(domain.OpScrape, domain.ErrInvalidResponse, err)
	}
	return product, nil
}

// Rate sends title and material to the rating model and normalizes the score.
func (c *Client) Rate(ctx context.Context, product domain.ScrapedProduct) (domain.EcoRating, error) {
	payload := map[string]string{
		"title":    product.Title,
		"material": product.Material,
	}

	var resp rateResponse
	if err := c.post(ctx, domain.OpRate, c.endpoints.rate, payload, rateSchema, &resp); err != nil {
		return domain.EcoRating{}, err
	}

	score, err := NormalizeScore(resp.Rating)
	if err != nil {
		return domain.EcoRating{}, domain.NewGatewayError(domain.OpRate, domain.ErrInvalidResponse, err)
	}

	return domain.EcoRating{
		Score:       score,
		Description: strings.TrimSpace(resp.Description),
		Category:    strings.TrimSpace(resp.Category),
	}, nil
}

// AnalyzeImage turns an uploaded image URL into a product search query.
func (c *Client) AnalyzeImage(ctx context.Context, imageURL string) (string, error) {
	var resp imageResponse
	if err := c.post(ctx, domain.OpAnalyzeImage, c.endpoints.image, map[string]string{"imageUrl": imageURL}, imageSchema, &resp); err != nil {
		return "", err
	}

	query := strings.TrimSpace(resp.Product)
	if query == "" {
		return "", domain.NewGatewayError(domain.OpAnalyzeImage, domain.ErrInvalidResponse, fmt.Errorf("blank product query"))
	}
	return query, nil
}

// SearchAlternatives returns candidates in the order the search service ranked them.
// An empty list is reported as domain.ErrEmptyResult.
func (c *Client) SearchAlternatives(ctx context.Context, query string) ([]domain.SearchCandidate, error) {
	var resp searchResponse
	if err := c.post(ctx, domain.OpSearch, c.endpoints.search, map[string]string{"query": query}, searchSchema, &resp); err != nil {
		return nil, err
	}

	candidates := make([]domain.SearchCandidate, 0, len(resp.Products))
	for _, p := range resp.Products {
		link := strings.TrimSpace(p.Link)
		if link == "" {
			continue
		}
		candidates = append(candidates, domain.SearchCandidate{Link: link, Title: strings.TrimSpace(p.Title)})
	}

	if len(candidates) == 0 {
		return nil, domain.NewGatewayError(domain.OpSearch, domain.ErrEmptyResult, fmt.Errorf("no products for %q", query))
	}
	return candidates, nil
}

// NormalizeScore accepts a JSON number or numeric string and returns an integer in [0,5].
// Fractional scores are rounded half away from zero after the range check.
func NormalizeScore(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("rating is missing")
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if sErr := json.Unmarshal(raw, &text); sErr != nil {
			return 0, fmt.Errorf("rating %s is neither number nor string", string(raw))
		}
		text = strings.TrimSpace(text)
		parsed, pErr := strconv.ParseFloat(text, 64)
		if pErr != nil {
			return 0, fmt.Errorf("rating %q is not numeric", text)
		}
		value = parsed
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("rating %v is not finite", value)
	}
	if value < 0 || value > domain.MaxScore {
		return 0, fmt.Errorf("rating %v outside [0,%d]", value, domain.MaxScore)
	}
	return int(math.Round(value)), nil
}

func priceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
