package models

import "time"

// Audit 記錄每個實體的操作人與時間
type Audit struct {
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedBy *string    `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
}
