package backoffice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

type EventHandler func(context.Context, *models.Event) error

// EventManager 接收門市系統透過 NATS 發佈的事件並分派給對應的處理器
type EventManager struct {
	natsConn *nats.Conn
	handlers map[enum.EventType]EventHandler
	logger   *zap.Logger
}

func NewEventManager(natsConn *nats.Conn, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: natsConn,
		handlers: make(map[enum.EventType]EventHandler),
		logger:   logger,
	}
}

func (em *EventManager) RegisterHandler(eventType enum.EventType, handler EventHandler) {
	em.handlers[eventType] = handler
}

func (em *EventManager) GetHandler(eventType enum.EventType) (EventHandler, bool) {
	handler, exists := em.handlers[eventType]
	return handler, exists
}

func (em *EventManager) SubscribeToEvents(wp *WorkerPool) error {
	_, err := em.natsConn.Subscribe("storefront.event.>", func(msg *nats.Msg) {
		var event models.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			em.logger.Error("Failed to unmarshal event", zap.Error(err))
			return
		}

		// 沒帶 ID 的事件無法去重，補一個隨機 ID
		if event.ID == "" {
			event.ID = uuid.NewString()
		}

		wp.Submit(context.Background(), &event)
	})

	return err
}

func (s *service) registerEventHandlers() {
	eventHandlers := map[enum.EventType]EventHandler{
		// 門市完成一筆銷售，後台登記為已完成的訂單並扣帳
		enum.EventTypeSaleCompleted: s.handleSaleCompleted,

		// 門市收到退貨，對應訂單轉為退貨並還帳
		enum.EventTypeSaleReturned: s.handleSaleReturned,

		// 貨運抵達門市，登記為一次進貨
		enum.EventTypeShipmentArrived: s.handleShipmentArrived,
	}

	for eventType, handler := range eventHandlers {
		s.eventManager.RegisterHandler(eventType, handler)
	}
}

type saleCompletedPayload struct {
	ClientID uint64             `json:"client_id"`
	StoreID  uint64             `json:"store_id"`
	Cloth    []models.OrderLine `json:"cloth"`
	Currency stripe.Currency    `json:"currency"`
}

func (s *service) handleSaleCompleted(ctx context.Context, event *models.Event) error {
	s.logger.Info("Handling sale completed event", zap.String("event_id", event.ID))

	var payload saleCompletedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		s.logger.Error("Failed to unmarshal sale payload", zap.Error(err))
		return err
	}

	// 銷售發生在特定門市，庫存從該門市扣減
	cloth := make([]models.OrderLine, len(payload.Cloth))
	for i, line := range payload.Cloth {
		storeID := payload.StoreID
		cloth[i] = models.OrderLine{
			GarmentID: line.GarmentID,
			Size:      line.Size,
			Amount:    line.Amount,
			StoreID:   &storeID,
		}
	}

	newOrder := &models.Order{
		ClientID: payload.ClientID,
		Cloth:    cloth,
		Status:   enum.OrderStatusCompleted,
		Currency: payload.Currency,
	}

	if _, err := s.CreateOrder(ctx, newOrder, "storefront"); err != nil {
		return fmt.Errorf("failed to create order for sale: %w", err)
	}

	s.logger.Info("Order created for storefront sale", zap.Uint64("order_id", newOrder.ID))
	return nil
}

type saleReturnedPayload struct {
	OrderID uint64 `json:"order_id"`
}

func (s *service) handleSaleReturned(ctx context.Context, event *models.Event) error {
	s.logger.Info("Handling sale returned event", zap.String("event_id", event.ID))

	var payload saleReturnedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		s.logger.Error("Failed to unmarshal return payload", zap.Error(err))
		return err
	}

	returned := enum.OrderStatusReturned
	if _, err := s.UpdateOrder(ctx, models.OrderUpdate{
		ID:     payload.OrderID,
		Status: &returned,
	}, "storefront"); err != nil {
		return fmt.Errorf("failed to mark order returned: %w", err)
	}

	s.logger.Info("Order marked as returned", zap.Uint64("order_id", payload.OrderID))
	return nil
}

type shipmentArrivedPayload struct {
	DeliveredTo   uint64             `json:"delivered_to"`
	DeliveredFrom *uint64            `json:"delivered_from,omitempty"`
	Type          enum.DeliveryType  `json:"type"`
	Price         *float64           `json:"price,omitempty"`
	Currency      stripe.Currency    `json:"currency"`
	Cloth         []models.ClothLine `json:"cloth"`
}

func (s *service) handleShipmentArrived(ctx context.Context, event *models.Event) error {
	s.logger.Info("Handling shipment arrived event", zap.String("event_id", event.ID))

	var payload shipmentArrivedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		s.logger.Error("Failed to unmarshal shipment payload", zap.Error(err))
		return err
	}

	newDelivery := &models.Delivery{
		DeliveredTo:   payload.DeliveredTo,
		DeliveredFrom: payload.DeliveredFrom,
		Type:          payload.Type,
		Price:         payload.Price,
		Currency:      payload.Currency,
		Cloth:         payload.Cloth,
	}

	if _, err := s.CreateDelivery(ctx, newDelivery, "storefront"); err != nil {
		return fmt.Errorf("failed to create delivery for shipment: %w", err)
	}

	s.logger.Info("Delivery created for shipment", zap.Uint64("delivery_id", newDelivery.ID))
	return nil
}

// ProcessEvent 處理單一事件。
// 事件以 ID 去重，插入事件記錄即是搶佔處理權，
// 沒搶到表示別的 worker 正在處理或已處理完成。
func (s *service) ProcessEvent(ctx context.Context, event *models.Event) error {
	handler, exists := s.eventManager.GetHandler(event.Type)
	if !exists {
		return fmt.Errorf("no handler registered for event type: %s", event.Type)
	}

	claimed, err := s.event.Create(ctx, nil, &models.Event{
		ID:        event.ID,
		Type:      event.Type,
		Data:      event.Data,
		Processed: false,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("Failed to create event", zap.Error(err))
		return err
	}
	if !claimed {
		s.logger.Info("Event already claimed", zap.String("event_id", event.ID))
		return nil
	}

	if err = handler(ctx, event); err != nil {
		s.logger.Error("處理事件時出錯",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		// 釋放處理權，事件重投時才能再試
		if delErr := s.event.Delete(ctx, nil, event.ID); delErr != nil {
			s.logger.Error("Failed to release event claim",
				zap.String("event_id", event.ID), zap.Error(delErr))
		}
		return err
	}

	if err = s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.event.MarkAsProcessed(ctx, tx, event.ID)
	}); err != nil {
		s.logger.Error("Failed to mark event as processed", zap.Error(err))
		return err
	}

	s.logger.Info("Storefront event processed", zap.String("event_id", event.ID))

	return nil
}
