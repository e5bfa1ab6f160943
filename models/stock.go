package models

import (
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// StockEntry 是庫存帳上的一筆計數，
// 以 (garment_id, store_id, size) 為唯一鍵，數量永遠不為負。
type StockEntry struct {
	ID        uint64    `json:"id"`
	GarmentID uint64    `json:"garment_id"`
	StoreID   uint64    `json:"store_id"`
	Size      enum.Size `json:"size"`
	Quantity  int64     `json:"quantity"`
	Audit
}
