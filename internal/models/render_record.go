package models

import "time"

// RenderRecord is the audit row written once per completed render.
type RenderRecord struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	SourceURL   string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}
