package users

import "time"

// Identity is the local record for a URS user. It is created the first time
// an external id is seen and never changes afterwards.
type Identity struct {
	ExternalID string    `json:"external_id"`
	InternalID string    `json:"internal_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentDataset records when a user last looked at a dataset. There is one
// entry per user and dataset.
type RecentDataset struct {
	UserID    string    `json:"user_id" db:"user_id"`
	DatasetID string    `json:"dataset_id" db:"dataset_id"`
	TouchedAt time.Time `json:"touched_at" db:"touched_at"`
}
