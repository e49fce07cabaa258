package models

// VendorRecord is the normalized shape of one retrieval hit. It lives only
// for the duration of a retrieval call; nothing in this service persists it.
type VendorRecord struct {
	ID          string                 `json:"id"`
	Score       *float64               `json:"score,omitempty"`
	Name        string                 `json:"name"`
	Location    string                 `json:"location"`
	Category    string                 `json:"category"`
	PriceRange  string                 `json:"price_range,omitempty"`
	Description string                 `json:"description,omitempty"`
	RawMetadata map[string]interface{} `json:"raw_metadata,omitempty"`
}

// Review is one customer review attached to a vendor, as fed to the
// editorial formatter.
type Review struct {
	Author string `json:"author,omitempty"`
	Rating string `json:"rating,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ModerationResult is the outcome of classifying one inbound utterance.
type ModerationResult struct {
	Flagged       bool   `json:"flagged"`
	DenialMessage string `json:"denial_message,omitempty"`
}
