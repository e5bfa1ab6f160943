package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Mainsed/diplom-mag-back/models/enum"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{&NotFoundError{Entity: "garment", ID: 3}, ErrNotFound},
		{&InvalidSizeError{GarmentID: 3, Size: enum.SizeXS}, ErrInvalidSize},
		{&InsufficientStockError{GarmentID: 3, StoreID: 1, Size: enum.SizeM, Requested: 5}, ErrInsufficientStock},
		{&InvalidTransitionError{From: enum.OrderStatusCreated, To: enum.OrderStatusReturned}, ErrInvalidTransition},
		{&InvariantViolationError{Reason: "negative quantity"}, ErrInvariantViolation},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("expected %T to unwrap to %v", tt.err, tt.sentinel)
		}
	}
}

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("failed to deduct stock: %w", &InsufficientStockError{GarmentID: 7, Size: enum.SizeL, Requested: 2})

	if !errors.Is(wrapped, ErrInsufficientStock) {
		t.Error("expected wrapped error to match sentinel")
	}

	var insufficientErr *InsufficientStockError
	if !errors.As(wrapped, &insufficientErr) {
		t.Fatal("expected errors.As to find InsufficientStockError")
	}
	if insufficientErr.GarmentID != 7 {
		t.Errorf("expected garment 7, got %d", insufficientErr.GarmentID)
	}
}
