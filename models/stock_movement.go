package models

import (
	"time"

	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// StockMovement 是庫存調整的流水記錄，
// 目前數量永遠可由調整歷史重新推導出來。
type StockMovement struct {
	ID            uint64                          `json:"id"`
	GarmentID     uint64                          `json:"garment_id"`
	StoreID       uint64                          `json:"store_id"`
	Size          enum.Size                       `json:"size"`
	Quantity      int64                           `json:"quantity"`
	Type          enum.StockMovementType          `json:"type"`
	ReferenceType enum.StockMovementReferenceType `json:"reference_type"`
	ReferenceID   uint64                          `json:"reference_id"`
	CreatedBy     string                          `json:"created_by"`
	CreatedAt     time.Time                       `json:"created_at"`
}
