package enum

type StockMovementReferenceType string

const (
	StockMovementReferenceTypeDelivery StockMovementReferenceType = "delivery"
	StockMovementReferenceTypeOrder    StockMovementReferenceType = "order"
	StockMovementReferenceTypeReturn   StockMovementReferenceType = "return"
)
