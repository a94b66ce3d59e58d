package domain

import (
	"fmt"
	"strings"
)

// ProductReference is the pipeline input: either a product page URL or an uploaded image.
type ProductReference struct {
	URL      string `json:"url,omitempty"`
	ImageURI string `json:"imageUrl,omitempty"`
}

// Validate enforces that exactly one variant is populated.
func (r ProductReference) Validate() error {
	hasURL := strings.TrimSpace(r.URL) != ""
	hasImage := strings.TrimSpace(r.ImageURI) != ""
	switch {
	case hasURL && hasImage:
		return fmt.Errorf("%w: both url and imageUrl are set", ErrInvalidReference)
	case !hasURL && !hasImage:
		return fmt.Errorf("%w: url or imageUrl is required", ErrInvalidReference)
	}
	return nil
}

// IsImage reports whether the reference points at an image rather than a product page.
func (r ProductReference) IsImage() bool {
	return strings.TrimSpace(r.ImageURI) != ""
}

// ScrapedProduct is the raw listing data returned by a scraper.
type ScrapedProduct struct {
	Title    string `json:"title"`
	Material string `json:"material"`
	Price    string `json:"price,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Validate rejects listings without a title or material.
func (p ScrapedProduct) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(p.Material) == "" {
		missing = append(missing, "material")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidResponse, strings.Join(missing, ", "))
	}
	return nil
}

// EcoRating is the rating model's verdict, already normalized to an integer score.
type EcoRating struct {
	Score       int    `json:"rating"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// MaxScore is the upper bound of the eco-score scale.
const MaxScore = 5

// RatedProduct joins a scraped listing with its rating and source link.
type RatedProduct struct {
	Title       string `json:"title"`
	Material    string `json:"material"`
	Price       string `json:"price,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Link        string `json:"link"`
	Rating      int    `json:"rating"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// NewRatedProduct builds a RatedProduct once both scrape and rating succeeded.
func NewRatedProduct(link string, scraped ScrapedProduct, rating EcoRating) RatedProduct {
	return RatedProduct{
		Title:       strings.TrimSpace(scraped.Title),
		Material:    strings.TrimSpace(scraped.Material),
		Price:       strings.TrimSpace(scraped.Price),
		ImageURL:    strings.TrimSpace(scraped.ImageURL),
		Link:        link,
		Rating:      rating.Score,
		Description: rating.Description,
		Category:    rating.Category,
	}
}

// CatalogRecord is the product document the catalog browser renders.
type CatalogRecord struct {
	Name        string `json:"name"`
	Material    string `json:"material"`
	Rating      int    `json:"rating"`
	Link        string `json:"link"`
	Image       string `json:"image"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       string `json:"price,omitempty"`
}

// CatalogRecord maps the product onto the catalog store's record shape.
func (p RatedProduct) CatalogRecord() CatalogRecord {
	return CatalogRecord{
		Name:        p.Title,
		Material:    p.Material,
		Rating:      p.Rating,
		Link:        p.Link,
		Image:       p.ImageURL,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
	}
}

// SearchCandidate is one entry of an alternative-search response.
type SearchCandidate struct {
	Link  string `json:"link"`
	Title string `json:"title,omitempty"`
}
