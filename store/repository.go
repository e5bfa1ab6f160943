package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
)

var _ Repository = (*repository)(nil)

// Repository 是核心對商店名錄的唯讀視角
type Repository interface {
	// Exists 檢查商店是否存在且仍在營運
	Exists(ctx context.Context, tx pgx.Tx, storeID uint64) (bool, error)

	GetStore(ctx context.Context, tx pgx.Tx, storeID uint64) (*models.Store, error)
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

func (r *repository) querier(tx pgx.Tx) driver.Querier {
	if tx != nil {
		return tx
	}
	return r.conn
}

func (r *repository) Exists(ctx context.Context, tx pgx.Tx, storeID uint64) (bool, error) {
	var exists bool
	err := r.querier(tx).QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM stores WHERE id = $1 AND is_active AND deleted_by IS NULL
		 )`,
		storeID,
	).Scan(&exists)
	if err != nil {
		r.logger.Error("failed to check store existence", zap.Uint64("store_id", storeID), zap.Error(err))
		return false, err
	}
	return exists, nil
}

func (r *repository) GetStore(ctx context.Context, tx pgx.Tx, storeID uint64) (*models.Store, error) {
	var s models.Store
	err := r.querier(tx).QueryRow(ctx,
		`SELECT id, address, is_active, created_by, created_at, updated_by, updated_at
		 FROM stores
		 WHERE id = $1 AND deleted_by IS NULL`,
		storeID,
	).Scan(&s.ID, &s.Address, &s.IsActive, &s.CreatedBy, &s.CreatedAt, &s.UpdatedBy, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "store", ID: storeID}
	}
	if err != nil {
		r.logger.Error("failed to get store", zap.Uint64("store_id", storeID), zap.Error(err))
		return nil, err
	}
	return &s, nil
}
