package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

const cacheTTL = 5 * time.Minute

var _ Repository = (*repository)(nil)

// Repository 是核心對型錄的唯讀視角：
// 服裝的有效尺寸集合與單價。
type Repository interface {
	GetGarment(ctx context.Context, tx pgx.Tx, id uint64) (*models.Garment, error)

	// ValidSizes 回傳服裝的有效尺寸集合，服裝不存在時回傳 NotFoundError
	ValidSizes(ctx context.Context, tx pgx.Tx, garmentID uint64) ([]enum.Size, error)

	// UnitPrices 批次查詢單價，任何一個 ID 缺少時回傳 NotFoundError
	UnitPrices(ctx context.Context, tx pgx.Tx, garmentIDs []uint64) (map[uint64]float64, error)
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

func (r *repository) GetGarment(ctx context.Context, tx pgx.Tx, id uint64) (*models.Garment, error) {
	cacheKey := fmt.Sprintf("garment:%d", id)

	if tx == nil {
		var garment models.Garment
		cached, err := r.cache.Get(ctx, cacheKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Error("failed to get garment from cache", zap.Uint64("garment_id", id), zap.Error(err))
		}
		if err == nil {
			if err = json.Unmarshal(cached, &garment); err == nil {
				return &garment, nil
			}
		}
	}

	var garment models.Garment
	var sizes []string
	err := r.querier(tx).QueryRow(ctx,
		`SELECT id, name, price, "desc", available_sizes, created_by, created_at, updated_by, updated_at
		 FROM garments
		 WHERE id = $1 AND deleted_by IS NULL`,
		id,
	).Scan(&garment.ID, &garment.Name, &garment.Price, &garment.Desc, &sizes,
		&garment.CreatedBy, &garment.CreatedAt, &garment.UpdatedBy, &garment.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "garment", ID: id}
	}
	if err != nil {
		r.logger.Error("failed to get garment", zap.Uint64("garment_id", id), zap.Error(err))
		return nil, err
	}

	garment.Sizes = make([]enum.Size, 0, len(sizes))
	for _, s := range sizes {
		garment.Sizes = append(garment.Sizes, enum.Size(s))
	}

	if tx == nil {
		if payload, err := json.Marshal(&garment); err == nil {
			if err = r.cache.Set(ctx, cacheKey, payload, cacheTTL).Err(); err != nil {
				r.logger.Error("failed to cache garment", zap.Uint64("garment_id", id), zap.Error(err))
			}
		}
	}

	return &garment, nil
}

func (r *repository) ValidSizes(ctx context.Context, tx pgx.Tx, garmentID uint64) ([]enum.Size, error) {
	garment, err := r.GetGarment(ctx, tx, garmentID)
	if err != nil {
		return nil, err
	}
	return garment.Sizes, nil
}

func (r *repository) UnitPrices(ctx context.Context, tx pgx.Tx, garmentIDs []uint64) (map[uint64]float64, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT id, price FROM garments WHERE id = ANY($1) AND deleted_by IS NULL`,
		garmentIDs,
	)
	if err != nil {
		r.logger.Error("failed to get unit prices", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	prices := make(map[uint64]float64, len(garmentIDs))
	for rows.Next() {
		var id uint64
		var price float64
		if err = rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		prices[id] = price
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range garmentIDs {
		if _, ok := prices[id]; !ok {
			return nil, &models.NotFoundError{Entity: "garment", ID: id}
		}
	}

	return prices, nil
}
