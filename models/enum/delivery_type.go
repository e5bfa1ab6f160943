package enum

// DeliveryType 表示配送的類型
type DeliveryType string

const (
	// DeliveryTypeInternal 店與店之間的內部調貨
	DeliveryTypeInternal DeliveryType = "INTERNAL"
	// DeliveryTypeExternal 從供應商進貨，帶有進貨價格
	DeliveryTypeExternal DeliveryType = "EXTERNAL"
)

func (t DeliveryType) Valid() bool {
	return t == DeliveryTypeInternal || t == DeliveryTypeExternal
}
