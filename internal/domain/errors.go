package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by gateways and the orchestrator.
var (
	ErrNetwork          = errors.New("network error")
	ErrInvalidResponse  = errors.New("invalid response")
	ErrUpstream         = errors.New("upstream error")
	ErrEmptyResult      = errors.New("empty result")
	ErrInvalidReference = errors.New("invalid product reference")
	ErrRunInProgress    = errors.New("a pipeline run is already active for this session")
)

// Gateway operation names.
const (
	OpScrape        = "scrape"
	OpRate          = "rate"
	OpAnalyzeImage  = "analyze_image"
	OpSearch        = "search"
	OpCatalogUpsert = "catalog_upsert"
)

// GatewayError tags a remote-call failure with its operation and kind.
type GatewayError struct {
	Operation string
	Kind      error
	Err       error
}

// NewGatewayError wraps err with the operation and one of the Err* kinds.
func NewGatewayError(op string, kind, err error) *GatewayError {
	return &GatewayError{Operation: op, Kind: kind, Err: err}
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Operation, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Operation, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorKind returns a short label for err, used in logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyResult):
		return "empty"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "error"
	}
}
