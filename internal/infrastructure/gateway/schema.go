package gateway

import "github.com/santhosh-tekuri/jsonschema/v5"

// Response schemas for the four remote operations. Only required fields are
// constrained; unknown fields are ignored. Search items are left loose so a
// single link-less entry is dropped by SearchAlternatives instead of failing the list.
var (
	scrapeSchema = jsonschema.MustCompileString("scrape.json", `{
		"type": "object",
		"required": ["title", "material"],
		"properties": {
			"title":     {"type": "string", "minLength": 1},
			"material":  {"type": "string", "minLength": 1},
			"price":     {"type": ["string", "number", "null"]},
			"image_url": {"type": ["string", "null"]}
		}
	}`)

	rateSchema = jsonschema.MustCompileString("rate.json", `{
		"type": "object",
		"required": ["rating"],
		"properties": {
			"rating":      {"type": ["number", "string"]},
			"description": {"type": ["string", "null"]},
			"category":    {"type": ["string", "null"]}
		}
	}`)

	imageSchema = jsonschema.MustCompileString("image.json", `{
		"type": "object",
		"required": ["product"],
		"properties": {
			"product": {"type": "string", "minLength": 1}
		}
	}`)

	searchSchema = jsonschema.MustCompileString("search.json", `{
		"type": "object",
		"required": ["products"],
		"properties": {
			"products": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"link":  {"type": ["string", "null"]},
						"title": {"type": ["string", "null"]}
					}
				}
			}
		}
	}`)
)
