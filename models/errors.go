package models

import (
	"errors"
	"fmt"

	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// 核心錯誤分類。具體錯誤型別都會 Unwrap 到這些哨兵，
// 呼叫端可以用 errors.Is 做分類、errors.As 取上下文。
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSize        = errors.New("invalid size")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvariantViolation = errors.New("stock invariant violation")
)

// NotFoundError 表示引用的實體不存在或已被刪除
type NotFoundError struct {
	Entity string
	ID     uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidSizeError 表示配送或訂購的尺寸不在服裝的有效尺寸集合內
type InvalidSizeError struct {
	GarmentID uint64
	Size      enum.Size
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("garment %d cannot have size %s", e.GarmentID, e.Size)
}

func (e *InvalidSizeError) Unwrap() error { return ErrInvalidSize }

// InsufficientStockError 表示請求的數量超過可用庫存
type InsufficientStockError struct {
	GarmentID uint64
	StoreID   uint64
	Size      enum.Size
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	if e.StoreID != 0 {
		return fmt.Sprintf("insufficient stock of garment %d size %s at store %d: requested %d",
			e.GarmentID, e.Size, e.StoreID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock of garment %d size %s: requested %d",
		e.GarmentID, e.Size, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidTransitionError 表示訂單狀態變更違反了狀態機規則
type InvalidTransitionError struct {
	From   enum.OrderStatus
	To     enum.OrderStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot transition order from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// InvariantViolationError 表示調整會讓庫存變為負數，
// 例如配送取消時某些件數已經被賣掉。
type InvariantViolationError struct {
	GarmentID uint64
	StoreID   uint64
	Size      enum.Size
	Reason    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on (garment %d, store %d, size %s): %s",
		e.GarmentID, e.StoreID, e.Size, e.Reason)
}

func (e *InvariantViolationError) Unwrap() error { return ErrInvariantViolation }
