package enum

import "testing"

func TestOrderStatusValid(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusCreated, OrderStatusSent, OrderStatusDelivered, OrderStatusCompleted, OrderStatusReturned} {
		if !status.Valid() {
			t.Errorf("expected %s to be valid", status)
		}
	}
	if OrderStatus("PENDING").Valid() {
		t.Error("expected PENDING to be invalid")
	}
	if OrderStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestOrderStatusFulfilled(t *testing.T) {
	tests := []struct {
		status    OrderStatus
		fulfilled bool
	}{
		{OrderStatusCreated, false},
		{OrderStatusSent, true},
		{OrderStatusDelivered, true},
		{OrderStatusCompleted, true},
		{OrderStatusReturned, false},
	}

	for _, tt := range tests {
		if got := tt.status.Fulfilled(); got != tt.fulfilled {
			t.Errorf("%s.Fulfilled() = %v, want %v", tt.status, got, tt.fulfilled)
		}
	}
}
