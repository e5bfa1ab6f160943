package enum

// OrderStatus 表示訂單的狀態
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"   // 訂單已創建，尚未出貨
	OrderStatusSent      OrderStatus = "SENT"      // 訂單已出貨
	OrderStatusDelivered OrderStatus = "DELIVERED" // 訂單已送達
	OrderStatusCompleted OrderStatus = "COMPLETED" // 訂單完成
	OrderStatusReturned  OrderStatus = "RETURNED"  // 訂單已退貨，庫存已恢復
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusSent, OrderStatusDelivered,
		OrderStatusCompleted, OrderStatusReturned:
		return true
	}
	return false
}

// Fulfilled 回報此狀態是否已扣過庫存
func (s OrderStatus) Fulfilled() bool {
	switch s {
	case OrderStatusSent, OrderStatusDelivered, OrderStatusCompleted:
		return true
	}
	return false
}
