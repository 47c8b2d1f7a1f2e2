package domain

import "time"

// PhotoStatus reflects user-facing photo state. Photos are written once per
// successfully uploaded image; failed generations simply produce no row.
type PhotoStatus string

const PhotoStatusCompleted PhotoStatus = "completed"

// Photo is one successfully generated image visible to the end user. The
// generation parameters and resolved prompt are echoed onto the row for
// provenance.
type Photo struct {
	ID          string
	UserID      string
	ModelID     string
	BatchID     string
	URL         string
	Status      PhotoStatus
	CreditsUsed int

	Prompt      string
	AspectRatio string
	Glasses     string
	HairColor   string
	HairStyle   string
	Backgrounds []string
	Styles      []string

	CreatedAt time.Time
}
