package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

const cacheTTL = 5 * time.Minute

// AdjustParams 描述一次對單一庫存鍵的原子調整。
// RequireEntry 為 true 時不會自動創建缺少的鍵，
// 用在還貨這種鍵理應已經存在的路徑上。
type AdjustParams struct {
	GarmentID    uint64
	StoreID      uint64
	Size         enum.Size
	Delta        int64
	Actor        string
	RequireEntry bool
}

// MovementParams 描述一筆要寫入流水的庫存變動
type MovementParams struct {
	GarmentID     uint64
	StoreID       uint64
	Size          enum.Size
	Quantity      int64
	Type          enum.StockMovementType
	ReferenceType enum.StockMovementReferenceType
	ReferenceID   uint64
	Actor         string
}

var _ Repository = (*repository)(nil)

type Repository interface {
	// Adjust 以單一 SQL 語句調整一個 (garment, store, size) 鍵的數量，
	// 調整後數量必須 >= 0，否則回傳 InsufficientStockError。
	Adjust(ctx context.Context, tx pgx.Tx, params AdjustParams) (int64, error)

	// Find 回傳目前數量，鍵不存在時回傳 0
	Find(ctx context.Context, tx pgx.Tx, garmentID, storeID uint64, size enum.Size) (int64, error)

	// FindAvailable 找出任一間數量足夠的商店，依 store_id 升冪取第一筆
	FindAvailable(ctx context.Context, tx pgx.Tx, garmentID uint64, size enum.Size, minimum int64) (*models.StockEntry, error)

	// ListByGarment 回傳某件服裝在各商店中數量大於零的庫存
	ListByGarment(ctx context.Context, tx pgx.Tx, garmentID uint64) ([]*models.StockEntry, error)

	CreateMovements(ctx context.Context, tx pgx.Tx, params []MovementParams) error
	GetMovementsByReference(ctx context.Context, tx pgx.Tx, referenceType enum.StockMovementReferenceType, referenceID uint64) ([]*models.StockMovement, error)
}

type repository struct {
	conn   driver.PostgresPool
	cache  *redis.Client
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, cache *redis.Client, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

func (r *repository) querier(tx pgx.Tx) driver.Querier {
	if tx != nil {
		return tx
	}
	return r.conn
}

const adjustUpSQL = `
INSERT INTO stock_entries (garment_id, store_id, size, quantity, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (garment_id, store_id, size) DO UPDATE
SET quantity   = stock_entries.quantity + EXCLUDED.quantity,
    updated_by = EXCLUDED.created_by,
    updated_at = now()
RETURNING quantity`

const adjustDownSQL = `
UPDATE stock_entries
SET quantity   = quantity + $4,
    updated_by = $5,
    updated_at = now()
WHERE garment_id = $1 AND store_id = $2 AND size = $3
  AND deleted_by IS NULL
  AND quantity + $4 >= 0
RETURNING quantity`

func (r *repository) Adjust(ctx context.Context, tx pgx.Tx, params AdjustParams) (int64, error) {
	var newQuantity int64
	var err error

	if params.Delta >= 0 && !params.RequireEntry {
		err = r.querier(tx).QueryRow(ctx, adjustUpSQL,
			params.GarmentID, params.StoreID, params.Size, params.Delta, params.Actor,
		).Scan(&newQuantity)
	} else {
		err = r.querier(tx).QueryRow(ctx, adjustDownSQL,
			params.GarmentID, params.StoreID, params.Size, params.Delta, params.Actor,
		).Scan(&newQuantity)
		if errors.Is(err, pgx.ErrNoRows) {
			// 分辨是鍵不存在還是數量不足
			var current int64
			lookupErr := r.querier(tx).QueryRow(ctx,
				`SELECT quantity FROM stock_entries
				 WHERE garment_id = $1 AND store_id = $2 AND size = $3 AND deleted_by IS NULL`,
				params.GarmentID, params.StoreID, params.Size,
			).Scan(&current)
			if errors.Is(lookupErr, pgx.ErrNoRows) {
				return 0, &models.NotFoundError{Entity: "stock entry", ID: params.GarmentID}
			}
			if lookupErr != nil {
				return 0, lookupErr
			}
			return 0, &models.InsufficientStockError{
				GarmentID: params.GarmentID,
				StoreID:   params.StoreID,
				Size:      params.Size,
				Requested: -params.Delta,
			}
		}
	}

	if err != nil {
		r.logger.Error("failed to adjust stock",
			zap.Uint64("garment_id", params.GarmentID),
			zap.Uint64("store_id", params.StoreID),
			zap.String("size", string(params.Size)),
			zap.Int64("delta", params.Delta),
			zap.Error(err))
		return 0, err
	}

	// 失效發生在交易提交之前，提交前的併發讀取可能把舊數量
	// 寫回快取，舊值最多存活一個 cacheTTL
	r.invalidateStockCache(ctx, params.GarmentID, params.StoreID, params.Size)

	return newQuantity, nil
}

func (r *repository) Find(ctx context.Context, tx pgx.Tx, garmentID, storeID uint64, size enum.Size) (int64, error) {
	cacheKey := stockCacheKey(garmentID, storeID, size)

	// 交易中的讀取不能走快取
	if tx == nil {
		cached, err := r.cache.Get(ctx, cacheKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Error("failed to get stock from cache", zap.String("key", cacheKey), zap.Error(err))
		}
		if err == nil {
			if quantity, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return quantity, nil
			}
		}
	}

	var quantity int64
	err := r.querier(tx).QueryRow(ctx,
		`SELECT quantity FROM stock_entries
		 WHERE garment_id = $1 AND store_id = $2 AND size = $3 AND deleted_by IS NULL`,
		garmentID, storeID, size,
	).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		r.logger.Error("failed to find stock", zap.Uint64("garment_id", garmentID), zap.Error(err))
		return 0, err
	}

	if tx == nil {
		if err = r.cache.Set(ctx, cacheKey, quantity, cacheTTL).Err(); err != nil {
			r.logger.Error("failed to cache stock", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	return quantity, nil
}

func (r *repository) FindAvailable(ctx context.Context, tx pgx.Tx, garmentID uint64, size enum.Size, minimum int64) (*models.StockEntry, error) {
	// 同一次查詢永遠回傳 store_id 最小的符合商店，讓挑選結果可重現
	var entry models.StockEntry
	err := r.querier(tx).QueryRow(ctx,
		`SELECT id, garment_id, store_id, size, quantity, created_by, created_at, updated_by, updated_at
		 FROM stock_entries
		 WHERE garment_id = $1 AND size = $2 AND quantity >= $3 AND deleted_by IS NULL
		 ORDER BY store_id ASC
		 LIMIT 1`,
		garmentID, size, minimum,
	).Scan(&entry.ID, &entry.GarmentID, &entry.StoreID, &entry.Size, &entry.Quantity,
		&entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedBy, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "stock entry", ID: garmentID}
	}
	if err != nil {
		r.logger.Error("failed to find available stock", zap.Uint64("garment_id", garmentID), zap.Error(err))
		return nil, err
	}

	return &entry, nil
}

func (r *repository) ListByGarment(ctx context.Context, tx pgx.Tx, garmentID uint64) ([]*models.StockEntry, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT id, garment_id, store_id, size, quantity, created_by, created_at, updated_by, updated_at
		 FROM stock_entries
		 WHERE garment_id = $1 AND quantity > 0 AND deleted_by IS NULL
		 ORDER BY store_id ASC, size ASC`,
		garmentID,
	)
	if err != nil {
		r.logger.Error("failed to list stock by garment", zap.Uint64("garment_id", garmentID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var entries []*models.StockEntry
	for rows.Next() {
		var entry models.StockEntry
		if err = rows.Scan(&entry.ID, &entry.GarmentID, &entry.StoreID, &entry.Size, &entry.Quantity,
			&entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedBy, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (r *repository) CreateMovements(ctx context.Context, tx pgx.Tx, params []MovementParams) error {
	if len(params) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, param := range params {
		batch.Queue(
			`INSERT INTO stock_movements
			 (garment_id, store_id, size, quantity, type, reference_type, reference_id, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
			param.GarmentID, param.StoreID, param.Size, param.Quantity,
			param.Type, param.ReferenceType, param.ReferenceID, param.Actor,
		)
	}

	batchResults := r.querier(tx).SendBatch(ctx, batch)
	defer func() {
		if err := batchResults.Close(); err != nil {
			r.logger.Error("failed to close batch", zap.Error(err))
		}
	}()

	for range params {
		if _, err := batchResults.Exec(); err != nil {
			r.logger.Error("failed to create stock movement", zap.Error(err))
			return err
		}
	}

	return nil
}

func (r *repository) GetMovementsByReference(ctx context.Context, tx pgx.Tx, referenceType enum.StockMovementReferenceType, referenceID uint64) ([]*models.StockMovement, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT id, garment_id, store_id, size, quantity, type, reference_type, reference_id, created_by, created_at
		 FROM stock_movements
		 WHERE reference_type = $1 AND reference_id = $2
		 ORDER BY id ASC`,
		referenceType, referenceID,
	)
	if err != nil {
		r.logger.Error("failed to get stock movements", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var movements []*models.StockMovement
	for rows.Next() {
		var movement models.StockMovement
		if err = rows.Scan(&movement.ID, &movement.GarmentID, &movement.StoreID, &movement.Size,
			&movement.Quantity, &movement.Type, &movement.ReferenceType, &movement.ReferenceID,
			&movement.CreatedBy, &movement.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, &movement)
	}

	return movements, rows.Err()
}

func stockCacheKey(garmentID, storeID uint64, size enum.Size) string {
	return fmt.Sprintf("stock:%d:%d:%s", garmentID, storeID, size)
}

func (r *repository) invalidateStockCache(ctx context.Context, garmentID, storeID uint64, size enum.Size) {
	cacheKey := stockCacheKey(garmentID, storeID, size)
	if err := r.cache.Del(ctx, cacheKey).Err(); err != nil {
		r.logger.Error("failed to invalidate stock cache", zap.String("key", cacheKey), zap.Error(err))
	}
}
