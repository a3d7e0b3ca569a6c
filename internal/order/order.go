package order

import "time"

// Batch is the set of images one user sent within one debounce window
type Batch struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ImageIDs   []string  `json:"image_ids"` // arrival order
	ReplyToken string    `json:"reply_token"`
	FiredAt    time.Time `json:"fired_at"`
}

// Outcome is how the processing of a batch ended
type Outcome string

const (
	OutcomeSaved             Outcome = "saved"
	OutcomeSavedWithoutImage Outcome = "saved_without_image"
	OutcomeDownloadFailed    Outcome = "download_failed"
	OutcomeExtractionFailed  Outcome = "extraction_failed"
	OutcomeDuplicateOrder    Outcome = "duplicate_order"
	OutcomeStoreWriteFailed  Outcome = "store_write_failed"
)

// Saved reports whether a row was written
func (o Outcome) Saved() bool {
	return o == OutcomeSaved || o == OutcomeSavedWithoutImage
}
