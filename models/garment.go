package models

import (
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// Garment 代表型錄中的一件服裝
type Garment struct {
	ID    uint64      `json:"id"`
	Name  string      `json:"name"`
	Price float64     `json:"price"`
	Desc  string      `json:"desc"`
	Sizes []enum.Size `json:"sizes"`
	Audit
}

// HasSize 檢查尺寸是否在此服裝的有效尺寸集合內
func (g *Garment) HasSize(size enum.Size) bool {
	for _, s := range g.Sizes {
		if s == size {
			return true
		}
	}
	return false
}
