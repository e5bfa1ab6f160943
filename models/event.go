package models

import (
	"encoding/json"
	"time"

	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// Event 代表一個來自門市系統的事件。
// Data 只在傳輸時使用，資料庫僅保存處理狀態以達成冪等。
type Event struct {
	ID        string          `json:"id"`
	Type      enum.EventType  `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Processed bool            `json:"processed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
