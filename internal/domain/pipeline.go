package domain

import "time"

// Stage enumerates orchestrator states.
type Stage string

const (
	StageIdle                  Stage = "idle"
	StageResolvingImage        Stage = "resolving_image"
	StageScraping              Stage = "scraping"
	StageRating                Stage = "rating"
	StageEcoFriendly           Stage = "eco_friendly"
	StageSearchingAlternatives Stage = "searching_alternatives"
	StageScrapingAlternative   Stage = "scraping_alternative"
	StageRatingAlternative     Stage = "rating_alternative"
	StageCompleted             Stage = "completed"
	StageFailed                Stage = "failed"
)

// Terminal reports whether no transition leaves the stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// RunStatus is the terminal status carried by a PipelineResult.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// FailureReason names why a run ended in StatusFailed.
type FailureReason string

const (
	ReasonNone                    FailureReason = ""
	ReasonInvalidReference        FailureReason = "InvalidReference"
	ReasonMissingProductData      FailureReason = "MissingProductData"
	ReasonScrapeFailed            FailureReason = "ScrapeFailed"
	ReasonInvalidRating           FailureReason = "InvalidRating"
	ReasonRatingFailed            FailureReason = "RatingFailed"
	ReasonMissingCategory         FailureReason = "MissingCategory"
	ReasonImageAnalysisFailed     FailureReason = "ImageAnalysisFailed"
	ReasonImageSearchFailed       FailureReason = "ImageSearchFailed"
	ReasonNoSearchResults         FailureReason = "NoSearchResults"
	ReasonAlternativeSearchFailed FailureReason = "AlternativeSearchFailed"
	ReasonCancelled               FailureReason = "Cancelled"
)

// PipelineResult is the immutable snapshot handed to callers at a terminal state.
type PipelineResult struct {
	RunID        string           `json:"runId"`
	Reference    ProductReference `json:"reference"`
	Status       RunStatus        `json:"status"`
	Reason       FailureReason    `json:"reason,omitempty"`
	Message      string           `json:"message,omitempty"`
	Primary      *RatedProduct    `json:"primary,omitempty"`
	Alternatives []RatedProduct   `json:"alternatives"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// ProgressEvent narrates one step of a run. Events are append-only.
type ProgressEvent struct {
	Seq       int       `json:"seq"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlternativeFailurePolicy decides what a failed alternative candidate does to the rest of the loop.
type AlternativeFailurePolicy string

const (
	// AlternativeSkip drops the failed candidate and continues with the next one.
	AlternativeSkip AlternativeFailurePolicy = "skip"
	// AlternativeAbort stops the loop and keeps the alternatives gathered so far.
	AlternativeAbort AlternativeFailurePolicy = "abort"
)
