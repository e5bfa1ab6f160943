package backoffice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/catalog"
	"github.com/Mainsed/diplom-mag-back/delivery"
	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/event"
	"github.com/Mainsed/diplom-mag-back/ledger"
	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
	"github.com/Mainsed/diplom-mag-back/order"
	"github.com/Mainsed/diplom-mag-back/report"
	"github.com/Mainsed/diplom-mag-back/store"
)

type Service interface {
	CreateDelivery(ctx context.Context, d *models.Delivery, actor string) (*models.Delivery, error)
	GetDelivery(ctx context.Context, id uint64) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, params delivery.ListParams) ([]*models.Delivery, uint64, error)
	UpdateDeliveryPrice(ctx context.Context, id uint64, price float64, actor string) error
	ReverseDelivery(ctx context.Context, id uint64, actor string) error

	CreateOrder(ctx context.Context, o *models.Order, actor string) (*models.Order, error)
	GetOrder(ctx context.Context, id uint64) (*models.Order, error)
	ListOrders(ctx context.Context, params order.ListParams) ([]*models.Order, uint64, error)
	UpdateOrder(ctx context.Context, update models.OrderUpdate, actor string) (*models.Order, error)
	SoftDeleteOrder(ctx context.Context, id uint64, actor string) error

	StockQuantity(ctx context.Context, garmentID, storeID uint64, size enum.Size) (int64, error)
	GarmentAvailability(ctx context.Context, garmentID uint64) ([]*models.StockEntry, error)

	GarmentSalesReport(ctx context.Context, from, to time.Time) ([]models.GarmentSales, error)
	MonthlyIncomeReport(ctx context.Context, from, to time.Time) ([]models.MonthlyIncome, error)
	StoreSalesReport(ctx context.Context, from, to time.Time) ([]models.StoreSales, error)

	Shutdown()
}

type service struct {
	catalog  catalog.Repository
	store    store.Repository
	delivery delivery.Repository
	order    order.Repository
	ledger   ledger.Repository
	event    event.Repository
	report   report.Repository

	transactionManager driver.TxManager
	eventManager       *EventManager
	workerPool         *WorkerPool

	natsConn *nats.Conn
	logger   *zap.Logger
}

func NewService(
	catalog catalog.Repository, store store.Repository, delivery delivery.Repository,
	order order.Repository, ledger ledger.Repository, event event.Repository, report report.Repository,
	tm driver.TxManager,
	natsConn *nats.Conn,
	logger *zap.Logger) Service {
	s := &service{
		catalog:            catalog,
		store:              store,
		delivery:           delivery,
		order:              order,
		ledger:             ledger,
		event:              event,
		report:             report,
		transactionManager: tm,
		natsConn:           natsConn,
		logger:             logger,
	}
	s.eventManager = NewEventManager(natsConn, logger)
	s.workerPool = NewWorkerPool(10, s, logger)
	s.registerEventHandlers()

	// 訂閱門市事件
	if natsConn != nil {
		if err := s.eventManager.SubscribeToEvents(s.workerPool); err != nil {
			logger.Error("Failed to subscribe to events", zap.Error(err))
		}
	}

	return s
}

func (s *service) Shutdown() {
	s.workerPool.Shutdown()
}

// CreateDelivery 登記一次進貨或調貨並入帳。
// 外部進貨只增加目的商店的庫存，內部調貨同時從來源商店扣減。
func (s *service) CreateDelivery(ctx context.Context, d *models.Delivery, actor string) (*models.Delivery, error) {
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		// 1. 驗證配送資料
		if err := s.validateDelivery(ctx, tx, d); err != nil {
			return err
		}

		// 2. 創建配送記錄
		d.TotalDelivered = d.TotalCount()
		d.CreatedBy = actor
		if _, err := s.delivery.Create(ctx, tx, d); err != nil {
			return fmt.Errorf("failed to create delivery: %w", err)
		}

		moveParams := make([]ledger.MovementParams, 0, len(d.Cloth))

		// 來源商店只是調貨的出處記錄，帳面數量一律記在目的商店
		for _, line := range d.Cloth {
			for _, sc := range line.Sizes {
				// 3. 增加目的商店的庫存
				if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustParams{
					GarmentID: line.GarmentID,
					StoreID:   d.DeliveredTo,
					Size:      sc.Size,
					Delta:     sc.Count,
					Actor:     actor,
				}); err != nil {
					return fmt.Errorf("failed to add stock for garment %d: %w", line.GarmentID, err)
				}

				moveParams = append(moveParams, ledger.MovementParams{
					GarmentID:     line.GarmentID,
					StoreID:       d.DeliveredTo,
					Size:          sc.Size,
					Quantity:      sc.Count,
					Type:          enum.StockMovementTypeIn,
					ReferenceType: enum.StockMovementReferenceTypeDelivery,
					ReferenceID:   d.ID,
					Actor:         actor,
				})
			}
		}

		// 4. 批量創建庫存變動記錄
		if err := s.ledger.CreateMovements(ctx, tx, moveParams); err != nil {
			return fmt.Errorf("failed to create stock movements: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return d, nil
}

func (s *service) validateDelivery(ctx context.Context, tx pgx.Tx, d *models.Delivery) error {
	if !d.Type.Valid() {
		return fmt.Errorf("invalid delivery type: %s", d.Type)
	}
	if len(d.Cloth) == 0 {
		return fmt.Errorf("delivery has no cloth lines")
	}
	if d.Type == enum.DeliveryTypeInternal && d.DeliveredFrom == nil {
		return fmt.Errorf("internal delivery requires a source store")
	}

	// 1. 檢查商店
	exists, err := s.store.Exists(ctx, tx, d.DeliveredTo)
	if err != nil {
		return fmt.Errorf("failed to check store: %w", err)
	}
	if !exists {
		return &models.NotFoundError{Entity: "store", ID: d.DeliveredTo}
	}

	if d.DeliveredFrom != nil {
		exists, err = s.store.Exists(ctx, tx, *d.DeliveredFrom)
		if err != nil {
			return fmt.Errorf("failed to check source store: %w", err)
		}
		if !exists {
			return &models.NotFoundError{Entity: "store", ID: *d.DeliveredFrom}
		}
	}

	// 2. 檢查尺寸是否在各服裝的有效集合內
	for _, line := range d.Cloth {
		garment, err := s.catalog.GetGarment(ctx, tx, line.GarmentID)
		if err != nil {
			return fmt.Errorf("failed to get garment %d: %w", line.GarmentID, err)
		}

		for _, sc := range line.Sizes {
			if sc.Count <= 0 {
				return fmt.Errorf("delivery count must be positive for garment %d", line.GarmentID)
			}
			if !garment.HasSize(sc.Size) {
				return &models.InvalidSizeError{GarmentID: line.GarmentID, Size: sc.Size}
			}
		}
	}

	return nil
}

func (s *service) GetDelivery(ctx context.Context, id uint64) (*models.Delivery, error) {
	return s.delivery.Get(ctx, nil, id)
}

func (s *service) ListDeliveries(ctx context.Context, params delivery.ListParams) ([]*models.Delivery, uint64, error) {
	return s.delivery.List(ctx, nil, params)
}

// UpdateDeliveryPrice 只允許修改價格，行項目在創建後不可變
func (s *service) UpdateDeliveryPrice(ctx context.Context, id uint64, price float64, actor string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.delivery.UpdatePrice(ctx, tx, id, price, actor)
	})
}

// ReverseDelivery 撤銷一次配送並反向調整庫存。
// 任何一筆扣減會讓數量變負時，整筆撤銷失敗且不留下任何變更。
func (s *service) ReverseDelivery(ctx context.Context, id uint64, actor string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		// 1. 獲取配送記錄
		d, err := s.delivery.Get(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to get delivery: %w", err)
		}

		moveParams := make([]ledger.MovementParams, 0, len(d.Cloth))

		for _, line := range d.Cloth {
			for _, sc := range line.Sizes {
				// 2. 從目的商店扣回當初入帳的數量
				if _, err = s.ledger.Adjust(ctx, tx, ledger.AdjustParams{
					GarmentID: line.GarmentID,
					StoreID:   d.DeliveredTo,
					Size:      sc.Size,
					Delta:     -sc.Count,
					Actor:     actor,
				}); err != nil {
					if errors.Is(err, models.ErrInsufficientStock) || errors.Is(err, models.ErrNotFound) {
						return &models.InvariantViolationError{
							GarmentID: line.GarmentID,
							StoreID:   d.DeliveredTo,
							Size:      sc.Size,
							Reason:    "reversal would drive quantity negative",
						}
					}
					return fmt.Errorf("failed to deduct stock for garment %d: %w", line.GarmentID, err)
				}

				moveParams = append(moveParams, ledger.MovementParams{
					GarmentID:     line.GarmentID,
					StoreID:       d.DeliveredTo,
					Size:          sc.Size,
					Quantity:      sc.Count,
					Type:          enum.StockMovementTypeOut,
					ReferenceType: enum.StockMovementReferenceTypeDelivery,
					ReferenceID:   d.ID,
					Actor:         actor,
				})
			}
		}

		// 3. 批量創建庫存變動記錄
		if err = s.ledger.CreateMovements(ctx, tx, moveParams); err != nil {
			return fmt.Errorf("failed to create stock movements: %w", err)
		}

		// 5. 軟刪除配送記錄
		if err = s.delivery.MarkDeleted(ctx, tx, id, actor); err != nil {
			return fmt.Errorf("failed to mark delivery deleted: %w", err)
		}

		return nil
	})
}

// CreateOrder 創建訂單。
// 訂單以已出貨或更後面的狀態創建時，庫存會在創建當下扣減。
func (s *service) CreateOrder(ctx context.Context, o *models.Order, actor string) (*models.Order, error) {
	if o.Status == "" {
		o.Status = enum.OrderStatusCreated
	}
	if !o.Status.Valid() {
		return nil, fmt.Errorf("invalid order status: %s", o.Status)
	}
	if o.Status == enum.OrderStatusReturned {
		return nil, &models.InvalidTransitionError{
			From:   enum.OrderStatusCreated,
			To:     enum.OrderStatusReturned,
			Reason: "order cannot be created as returned",
		}
	}

	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		// 1. 驗證行項目
		if err := s.validateOrderCloth(ctx, tx, o.Cloth); err != nil {
			return err
		}

		// 2. 按型錄單價計算訂單總價
		price, err := s.computeOrderPrice(ctx, tx, o.Cloth)
		if err != nil {
			return err
		}
		o.Price = price

		// 3. 已出貨狀態的訂單在創建時就扣減庫存
		var moveParams []ledger.MovementParams
		if o.Status.Fulfilled() {
			if moveParams, err = s.reserveOrderStock(ctx, tx, o, actor); err != nil {
				return err
			}
		}

		// 4. 創建訂單
		o.CreatedBy = actor
		if _, err = s.order.Create(ctx, tx, o); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		// 5. 批量創建庫存變動記錄
		for i := range moveParams {
			moveParams[i].ReferenceID = o.ID
		}
		if err = s.ledger.CreateMovements(ctx, tx, moveParams); err != nil {
			return fmt.Errorf("failed to create stock movements: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return o, nil
}

func (s *service) validateOrderCloth(ctx context.Context, tx pgx.Tx, cloth []models.OrderLine) error {
	if len(cloth) == 0 {
		return fmt.Errorf("order has no cloth lines")
	}

	for _, line := range cloth {
		if line.Amount <= 0 {
			return fmt.Errorf("order amount must be positive for garment %d", line.GarmentID)
		}

		garment, err := s.catalog.GetGarment(ctx, tx, line.GarmentID)
		if err != nil {
			return fmt.Errorf("failed to get garment %d: %w", line.GarmentID, err)
		}
		if !garment.HasSize(line.Size) {
			return &models.InvalidSizeError{GarmentID: line.GarmentID, Size: line.Size}
		}
	}

	return nil
}

func (s *service) computeOrderPrice(ctx context.Context, tx pgx.Tx, cloth []models.OrderLine) (float64, error) {
	garmentIDs := make([]uint64, 0, len(cloth))
	for _, line := range cloth {
		garmentIDs = append(garmentIDs, line.GarmentID)
	}

	prices, err := s.catalog.UnitPrices(ctx, tx, garmentIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to get unit prices: %w", err)
	}

	var total float64
	for _, line := range cloth {
		total += prices[line.GarmentID] * float64(line.Amount)
	}

	return total, nil
}

// reserveOrderStock 為每個行項目扣減庫存。
// 未指定商店的行項目會挑選任一間數量足夠的商店並記錄下來，
// 之後的退貨要把數量還回同一間商店。
func (s *service) reserveOrderStock(ctx context.Context, tx pgx.Tx, o *models.Order, actor string) ([]ledger.MovementParams, error) {
	moveParams := make([]ledger.MovementParams, 0, len(o.Cloth))

	for i := range o.Cloth {
		line := &o.Cloth[i]

		if line.StoreID == nil {
			entry, err := s.ledger.FindAvailable(ctx, tx, line.GarmentID, line.Size, line.Amount)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil, &models.InsufficientStockError{
						GarmentID: line.GarmentID,
						Size:      line.Size,
						Requested: line.Amount,
					}
				}
				return nil, fmt.Errorf("failed to find available stock for garment %d: %w", line.GarmentID, err)
			}
			storeID := entry.StoreID
			line.StoreID = &storeID
		}

		if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustParams{
			GarmentID: line.GarmentID,
			StoreID:   *line.StoreID,
			Size:      line.Size,
			Delta:     -line.Amount,
			Actor:     actor,
		}); err != nil {
			if errors.Is(err, models.ErrInsufficientStock) || errors.Is(err, models.ErrNotFound) {
				return nil, &models.InsufficientStockError{
					GarmentID: line.GarmentID,
					StoreID:   *line.StoreID,
					Size:      line.Size,
					Requested: line.Amount,
				}
			}
			return nil, fmt.Errorf("failed to deduct stock for garment %d: %w", line.GarmentID, err)
		}

		moveParams = append(moveParams, ledger.MovementParams{
			GarmentID:     line.GarmentID,
			StoreID:       *line.StoreID,
			Size:          line.Size,
			Quantity:      line.Amount,
			Type:          enum.StockMovementTypeOut,
			ReferenceType: enum.StockMovementReferenceTypeOrder,
			ReferenceID:   o.ID,
			Actor:         actor,
		})
	}

	return moveParams, nil
}

// restoreOrderStock 把出貨時扣減的數量還回當初扣減的商店
func (s *service) restoreOrderStock(ctx context.Context, tx pgx.Tx, o *models.Order, actor string) ([]ledger.MovementParams, error) {
	moveParams := make([]ledger.MovementParams, 0, len(o.Cloth))

	for _, line := range o.Cloth {
		if line.StoreID == nil {
			return nil, &models.NotFoundError{Entity: "stock entry", ID: line.GarmentID}
		}

		// 當初扣過的鍵必須還在，缺少時是資料完整性問題
		if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustParams{
			GarmentID:    line.GarmentID,
			StoreID:      *line.StoreID,
			Size:         line.Size,
			Delta:        line.Amount,
			Actor:        actor,
			RequireEntry: true,
		}); err != nil {
			return nil, fmt.Errorf("failed to restore stock for garment %d: %w", line.GarmentID, err)
		}

		moveParams = append(moveParams, ledger.MovementParams{
			GarmentID:     line.GarmentID,
			StoreID:       *line.StoreID,
			Size:          line.Size,
			Quantity:      line.Amount,
			Type:          enum.StockMovementTypeIn,
			ReferenceType: enum.StockMovementReferenceTypeReturn,
			ReferenceID:   o.ID,
			Actor:         actor,
		})
	}

	return moveParams, nil
}

// allowedTransition 定義訂單狀態機：
// 已出貨狀態之間可以互相轉換，也可以轉為退貨；
// 尚未出貨或已退貨的訂單沒有東西可退；
// 退貨後可以再次出貨，庫存會重新扣減。
func allowedTransition(from, to enum.OrderStatus) bool {
	switch {
	case to == enum.OrderStatusReturned:
		return from.Fulfilled()
	case to.Fulfilled():
		return true
	default:
		return false
	}
}

func (s *service) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	return s.order.Get(ctx, nil, id)
}

func (s *service) ListOrders(ctx context.Context, params order.ListParams) ([]*models.Order, uint64, error) {
	return s.order.List(ctx, nil, params)
}

// UpdateOrder 更新訂單的客戶、行項目或狀態。
// 庫存在從未出貨狀態進入已出貨狀態時扣減，在轉為退貨時恢復。
func (s *service) UpdateOrder(ctx context.Context, update models.OrderUpdate, actor string) (*models.Order, error) {
	var updated *models.Order

	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		// 1. 獲取訂單
		o, err := s.order.Get(ctx, tx, update.ID)
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}

		if update.ClientID != nil {
			o.ClientID = *update.ClientID
		}

		// 2. 替換行項目，只允許在庫存尚未扣減時進行
		if update.Cloth != nil {
			if o.Status.Fulfilled() {
				return &models.InvalidTransitionError{
					From:   o.Status,
					To:     o.Status,
					Reason: "order already shipped",
				}
			}

			if err = s.validateOrderCloth(ctx, tx, update.Cloth); err != nil {
				return err
			}

			// 行項目改變時重新計算總價
			price, err := s.computeOrderPrice(ctx, tx, update.Cloth)
			if err != nil {
				return err
			}
			o.Cloth = update.Cloth
			o.Price = price
		}

		// 3. 狀態轉換
		var moveParams []ledger.MovementParams
		if update.Status != nil && *update.Status != o.Status {
			newStatus := *update.Status
			if !newStatus.Valid() {
				return fmt.Errorf("invalid order status: %s", newStatus)
			}
			if !allowedTransition(o.Status, newStatus) {
				return &models.InvalidTransitionError{From: o.Status, To: newStatus}
			}

			switch {
			case !o.Status.Fulfilled() && newStatus.Fulfilled():
				// 首次進入已出貨狀態，扣減庫存
				if moveParams, err = s.reserveOrderStock(ctx, tx, o, actor); err != nil {
					return err
				}
			case newStatus == enum.OrderStatusReturned:
				// 退貨，把數量還回當初扣減的商店
				if moveParams, err = s.restoreOrderStock(ctx, tx, o, actor); err != nil {
					return err
				}
			}

			o.Status = newStatus
		}

		// 4. 保存訂單
		if err = s.order.Update(ctx, tx, o, actor); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		// 5. 批量創建庫存變動記錄
		if err = s.ledger.CreateMovements(ctx, tx, moveParams); err != nil {
			return fmt.Errorf("failed to create stock movements: %w", err)
		}

		updated = o
		return nil
	})

	if err != nil {
		return nil, err
	}

	return updated, nil
}

// SoftDeleteOrder 軟刪除訂單。
// 刪除不會恢復庫存，已出貨的訂單要先轉為退貨才會還貨。
func (s *service) SoftDeleteOrder(ctx context.Context, id uint64, actor string) error {
	return s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		return s.order.MarkDeleted(ctx, tx, id, actor)
	})
}

func (s *service) StockQuantity(ctx context.Context, garmentID, storeID uint64, size enum.Size) (int64, error) {
	if !size.Valid() {
		return 0, &models.InvalidSizeError{GarmentID: garmentID, Size: size}
	}
	return s.ledger.Find(ctx, nil, garmentID, storeID, size)
}

// GarmentAvailability 回傳某件服裝在各商店中還有庫存的分佈
func (s *service) GarmentAvailability(ctx context.Context, garmentID uint64) ([]*models.StockEntry, error) {
	if _, err := s.catalog.GetGarment(ctx, nil, garmentID); err != nil {
		return nil, fmt.Errorf("failed to get garment: %w", err)
	}
	return s.ledger.ListByGarment(ctx, nil, garmentID)
}

func (s *service) GarmentSalesReport(ctx context.Context, from, to time.Time) ([]models.GarmentSales, error) {
	return s.report.GarmentSales(ctx, nil, from, to)
}

func (s *service) MonthlyIncomeReport(ctx context.Context, from, to time.Time) ([]models.MonthlyIncome, error) {
	return s.report.MonthlyIncome(ctx, nil, from, to)
}

func (s *service) StoreSalesReport(ctx context.Context, from, to time.Time) ([]models.StoreSales, error) {
	return s.report.StoreSales(ctx, nil, from, to)
}
