package models

// Store 代表一間商店
type Store struct {
	ID       uint64 `json:"id"`
	Address  string `json:"address"`
	IsActive bool   `json:"is_active"`
	Audit
}
