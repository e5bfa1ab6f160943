package models

import "time"

// GarmentSales 表示單一服飾在報表期間的銷售統計
type GarmentSales struct {
	GarmentID uint64
	Name      string
	SoldCount uint64
	// ChangePercent 相對於前一個同長度期間的變化。前期無銷售時為 nil。
	ChangePercent *float64
}

// MonthlyIncome 表示單一月份的完成訂單收入
type MonthlyIncome struct {
	Month  time.Time
	Income float64
	Orders uint64
}

// StoreSales 表示單一分店的出貨統計
type StoreSales struct {
	StoreID   uint64
	Address   string
	SoldCount uint64
}
