package models

import (
	"github.com/stripe/stripe-go/v79"

	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// SizeCount 代表配送行項目中單一尺寸的件數
type SizeCount struct {
	Size  enum.Size `json:"size"`
	Count int64     `json:"count"`
}

// ClothLine 代表一次配送中某件服裝的各尺寸件數
type ClothLine struct {
	GarmentID uint64      `json:"garment_id"`
	Sizes     []SizeCount `json:"sizes"`
}

// Delivery 代表一次進貨或調貨。
// 行項目在創建後不可變，只有價格等附屬資料可以更新。
type Delivery struct {
	ID             uint64            `json:"id"`
	DeliveredTo    uint64            `json:"delivered_to"`
	DeliveredFrom  *uint64           `json:"delivered_from,omitempty"`
	Type           enum.DeliveryType `json:"type"`
	Price          *float64          `json:"price,omitempty"`
	Currency       stripe.Currency   `json:"currency"`
	TotalDelivered int64             `json:"total_delivered"`
	Cloth          []ClothLine       `json:"cloth"`
	Audit
}

// TotalCount 計算所有行項目的總件數
func (d *Delivery) TotalCount() int64 {
	var total int64
	for _, line := range d.Cloth {
		for _, sc := range line.Sizes {
			total += sc.Count
		}
	}
	return total
}
