package models

import (
	"github.com/stripe/stripe-go/v79"

	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// OrderLine 代表訂單中的單一服裝項目。
// StoreID 只有在實際從某間商店扣過庫存後才會被填入。
type OrderLine struct {
	GarmentID uint64    `json:"garment_id"`
	Size      enum.Size `json:"size"`
	Amount    int64     `json:"amount"`
	StoreID   *uint64   `json:"store_id,omitempty"`
}

// Order 代表客戶訂單
type Order struct {
	ID       uint64           `json:"id"`
	ClientID uint64           `json:"client_id"`
	Cloth    []OrderLine      `json:"cloth"`
	Status   enum.OrderStatus `json:"status"`
	Price    float64          `json:"price"`
	Currency stripe.Currency  `json:"currency"`
	Audit
}

// OrderUpdate 描述一次訂單更新，nil 欄位代表保持不變
type OrderUpdate struct {
	ID       uint64            `json:"id"`
	ClientID *uint64           `json:"client_id,omitempty"`
	Cloth    []OrderLine       `json:"cloth,omitempty"`
	Status   *enum.OrderStatus `json:"status,omitempty"`
}
