package enum

// EventType 表示門市系統發佈的事件類型
type EventType string

const (
	EventTypeSaleCompleted   EventType = "sale.completed"
	EventTypeSaleReturned    EventType = "sale.returned"
	EventTypeShipmentArrived EventType = "shipment.arrived"
)
