package order

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// ListParams 描述訂單清單查詢的過濾與分頁
type ListParams struct {
	ClientID *uint64
	Status   *enum.OrderStatus
	Limit    uint64
	Offset   uint64
}

var _ Repository = (*repository)(nil)

type Repository interface {
	// Create 保存訂單與行項目，回傳帶有 ID 的實體
	Create(ctx context.Context, tx pgx.Tx, o *models.Order) (*models.Order, error)

	// Get 回傳未被刪除的訂單，含行項目
	Get(ctx context.Context, tx pgx.Tx, id uint64) (*models.Order, error)

	// List 回傳一頁訂單與總筆數
	List(ctx context.Context, tx pgx.Tx, params ListParams) ([]*models.Order, uint64, error)

	// Update 覆寫訂單的欄位與行項目
	Update(ctx context.Context, tx pgx.Tx, o *models.Order, actor string) error

	// MarkDeleted 軟刪除訂單，不碰庫存
	MarkDeleted(ctx context.Context, tx pgx.Tx, id uint64, actor string) error
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, o *models.Order) (*models.Order, error) {
	err := r.querier(tx).QueryRow(ctx,
		`INSERT INTO orders (client_id, status, price, currency, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING id, created_at`,
		o.ClientID, o.Status, o.Price, o.Currency, o.CreatedBy,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create order", zap.Error(err))
		return nil, err
	}

	if err = r.insertCloth(ctx, tx, o.ID, o.Cloth); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *repository) insertCloth(ctx context.Context, tx pgx.Tx, orderID uint64, cloth []models.OrderLine) error {
	if len(cloth) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, line := range cloth {
		batch.Queue(
			`INSERT INTO order_cloth (order_id, garment_id, size, amount, store_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, line.GarmentID, line.Size, line.Amount, line.StoreID,
		)
	}

	batchResults := r.querier(tx).SendBatch(ctx, batch)
	defer func() {
		if err := batchResults.Close(); err != nil {
			r.logger.Error("failed to close batch", zap.Error(err))
		}
	}()

	for range cloth {
		if _, err := batchResults.Exec(); err != nil {
			r.logger.Error("failed to create order line", zap.Uint64("order_id", orderID), zap.Error(err))
			return err
		}
	}

	return nil
}

func (r *repository) Get(ctx context.Context, tx pgx.Tx, id uint64) (*models.Order, error) {
	var o models.Order
	err := r.querier(tx).QueryRow(ctx,
		`SELECT id, client_id, status, price, currency, created_by, created_at, updated_by, updated_at
		 FROM orders
		 WHERE id = $1 AND deleted_by IS NULL`,
		id,
	).Scan(&o.ID, &o.ClientID, &o.Status, &o.Price, &o.Currency,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedBy, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		r.logger.Error("failed to get order", zap.Uint64("order_id", id), zap.Error(err))
		return nil, err
	}

	if o.Cloth, err = r.listCloth(ctx, tx, id); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) listCloth(ctx context.Context, tx pgx.Tx, orderID uint64) ([]models.OrderLine, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT garment_id, size, amount, store_id
		 FROM order_cloth
		 WHERE order_id = $1
		 ORDER BY id ASC`,
		orderID,
	)
	if err != nil {
		r.logger.Error("failed to list order cloth", zap.Uint64("order_id", orderID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var cloth []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		if err = rows.Scan(&line.GarmentID, &line.Size, &line.Amount, &line.StoreID); err != nil {
			return nil, err
		}
		cloth = append(cloth, line)
	}

	return cloth, rows.Err()
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, params ListParams) ([]*models.Order, uint64, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT id, client_id, status, price, currency, created_by, created_at, updated_by, updated_at
		 FROM orders
		 WHERE deleted_by IS NULL
		   AND ($1::bigint IS NULL OR client_id = $1)
		   AND ($2::text IS NULL OR status = $2)
		 ORDER BY id ASC
		 LIMIT $3 OFFSET $4`,
		params.ClientID, params.Status, params.Limit, params.Offset,
	)
	if err != nil {
		r.logger.Error("failed to list orders", zap.Error(err))
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		if err = rows.Scan(&o.ID, &o.ClientID, &o.Status, &o.Price, &o.Currency,
			&o.CreatedBy, &o.CreatedAt, &o.UpdatedBy, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		orders = append(orders, &o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, o := range orders {
		if o.Cloth, err = r.listCloth(ctx, tx, o.ID); err != nil {
			return nil, 0, err
		}
	}

	var count uint64
	err = r.querier(tx).QueryRow(ctx,
		`SELECT count(*) FROM orders
		 WHERE deleted_by IS NULL
		   AND ($1::bigint IS NULL OR client_id = $1)
		   AND ($2::text IS NULL OR status = $2)`,
		params.ClientID, params.Status,
	).Scan(&count)
	if err != nil {
		r.logger.Error("failed to count orders", zap.Error(err))
		return nil, 0, err
	}

	return orders, count, nil
}

func (r *repository) Update(ctx context.Context, tx pgx.Tx, o *models.Order, actor string) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE orders
		 SET client_id = $2, status = $3, price = $4, updated_by = $5, updated_at = now()
		 WHERE id = $1 AND deleted_by IS NULL`,
		o.ID, o.ClientID, o.Status, o.Price, actor,
	)
	if err != nil {
		r.logger.Error("failed to update order", zap.Uint64("order_id", o.ID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Entity: "order", ID: o.ID}
	}

	// 行項目整組覆寫
	if _, err = r.querier(tx).Exec(ctx,
		`DELETE FROM order_cloth WHERE order_id = $1`, o.ID,
	); err != nil {
		r.logger.Error("failed to clear order cloth", zap.Uint64("order_id", o.ID), zap.Error(err))
		return err
	}

	return r.insertCloth(ctx, tx, o.ID, o.Cloth)
}

func (r *repository) MarkDeleted(ctx context.Context, tx pgx.Tx, id uint64, actor string) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE orders
		 SET deleted_by = $2, updated_at = now()
		 WHERE id = $1 AND deleted_by IS NULL`,
		id, actor,
	)
	if err != nil {
		r.logger.Error("failed to mark order deleted", zap.Uint64("order_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Entity: "order", ID: id}
	}
	return nil
}
