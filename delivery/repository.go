package delivery

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

// ListParams 描述配送清單查詢的過濾與分頁
type ListParams struct {
	DeliveredTo *uint64
	Type        *enum.DeliveryType
	Limit       uint64
	Offset      uint64
}

var _ Repository = (*repository)(nil)

type Repository interface {
	// Create 保存配送記錄與行項目，回傳帶有 ID 的實體
	Create(ctx context.Context, tx pgx.Tx, d *models.Delivery) (*models.Delivery, error)

	// Get 回傳未被刪除的配送記錄，含行項目
	Get(ctx context.Context, tx pgx.Tx, id uint64) (*models.Delivery, error)

	// List 回傳一頁配送記錄與總筆數
	List(ctx context.Context, tx pgx.Tx, params ListParams) ([]*models.Delivery, uint64, error)

	// UpdatePrice 只更新價格，行項目在創建後不可變
	UpdatePrice(ctx context.Context, tx pgx.Tx, id uint64, price float64, actor string) error

	// MarkDeleted 軟刪除配送記錄
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, d *models.Delivery) (*models.Delivery, error) {
	err := r.querier(tx).QueryRow(ctx,
		`INSERT INTO deliveries
		 (delivered_to, delivered_from, type, price, currency, total_delivered, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 RETURNING id, created_at`,
		d.DeliveredTo, d.DeliveredFrom, d.Type, d.Price, d.Currency, d.TotalDelivered, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create delivery", zap.Error(err))
		return nil, err
	}

	batch := &pgx.Batch{}
	for _, line := range d.Cloth {
		for _, sc := range line.Sizes {
			batch.Queue(
				`INSERT INTO delivery_cloth (delivery_id, garment_id, size, count)
				 VALUES ($1, $2, $3, $4)`,
				d.ID, line.GarmentID, sc.Size, sc.Count,
			)
		}
	}

	batchResults := r.querier(tx).SendBatch(ctx, batch)
	defer func() {
		if err := batchResults.Close(); err != nil {
			r.logger.Error("failed to close batch", zap.Error(err))
		}
	}()

	for _, line := range d.Cloth {
		for range line.Sizes {
			if _, err = batchResults.Exec(); err != nil {
				r.logger.Error("failed to create delivery line", zap.Uint64("delivery_id", d.ID), zap.Error(err))
				return nil, err
			}
		}
	}

	return d, nil
}

func (r *repository) Get(ctx context.Context, tx pgx.Tx, id uint64) (*models.Delivery, error) {
	var d models.Delivery
	err := r.querier(tx).QueryRow(ctx,
		`SELECT id, delivered_to, delivered_from, type, price, currency, total_delivered,
		        created_by, created_at, updated_by, updated_at
		 FROM deliveries
		 WHERE id = $1 AND deleted_by IS NULL`,
		id,
	).Scan(&d.ID, &d.DeliveredTo, &d.DeliveredFrom, &d.Type, &d.Price, &d.Currency, &d.TotalDelivered,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedBy, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "delivery", ID: id}
	}
	if err != nil {
		r.logger.Error("failed to get delivery", zap.Uint64("delivery_id", id), zap.Error(err))
		return nil, err
	}

	if d.Cloth, err = r.listCloth(ctx, tx, id); err != nil {
		return nil, err
	}

	return &d, nil
}

// listCloth 讀出行項目並依服裝分組
func (r *repository) listCloth(ctx context.Context, tx pgx.Tx, deliveryID uint64) ([]models.ClothLine, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT garment_id, size, count
		 FROM delivery_cloth
		 WHERE delivery_id = $1
		 ORDER BY garment_id ASC, size ASC`,
		deliveryID,
	)
	if err != nil {
		r.logger.Error("failed to list delivery cloth", zap.Uint64("delivery_id", deliveryID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var cloth []models.ClothLine
	for rows.Next() {
		var garmentID uint64
		var sc models.SizeCount
		if err = rows.Scan(&garmentID, &sc.Size, &sc.Count); err != nil {
			return nil, err
		}
		if len(cloth) > 0 && cloth[len(cloth)-1].GarmentID == garmentID {
			last := &cloth[len(cloth)-1]
			last.Sizes = append(last.Sizes, sc)
			continue
		}
		cloth = append(cloth, models.ClothLine{GarmentID: garmentID, Sizes: []models.SizeCount{sc}})
	}

	return cloth, rows.Err()
}

func (r *repository) List(ctx context.Context, tx pgx.Tx, params ListParams) ([]*models.Delivery, uint64, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT id, delivered_to, delivered_from, type, price, currency, total_delivered,
		        created_by, created_at, updated_by, updated_at
		 FROM deliveries
		 WHERE deleted_by IS NULL
		   AND ($1::bigint IS NULL OR delivered_to = $1)
		   AND ($2::text IS NULL OR type = $2)
		 ORDER BY id ASC
		 LIMIT $3 OFFSET $4`,
		params.DeliveredTo, params.Type, params.Limit, params.Offset,
	)
	if err != nil {
		r.logger.Error("failed to list deliveries", zap.Error(err))
		return nil, 0, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		var d models.Delivery
		if err = rows.Scan(&d.ID, &d.DeliveredTo, &d.DeliveredFrom, &d.Type, &d.Price, &d.Currency,
			&d.TotalDelivered, &d.CreatedBy, &d.CreatedAt, &d.UpdatedBy, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, &d)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, d := range deliveries {
		if d.Cloth, err = r.listCloth(ctx, tx, d.ID); err != nil {
			return nil, 0, err
		}
	}

	var count uint64
	err = r.querier(tx).QueryRow(ctx,
		`SELECT count(*) FROM deliveries
		 WHERE deleted_by IS NULL
		   AND ($1::bigint IS NULL OR delivered_to = $1)
		   AND ($2::text IS NULL OR type = $2)`,
		params.DeliveredTo, params.Type,
	).Scan(&count)
	if err != nil {
		r.logger.Error("failed to count deliveries", zap.Error(err))
		return nil, 0, err
	}

	return deliveries, count, nil
}

func (r *repository) UpdatePrice(ctx context.Context, tx pgx.Tx, id uint64, price float64, actor string) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE deliveries
		 SET price = $2, updated_by = $3, updated_at = now()
		 WHERE id = $1 AND deleted_by IS NULL`,
		id, price, actor,
	)
	if err != nil {
		r.logger.Error("failed to update delivery price", zap.Uint64("delivery_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Entity: "delivery", ID: id}
	}
	return nil
}

func (r *repository) MarkDeleted(ctx context.Context, tx pgx.Tx, id uint64, actor string) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE deliveries
		 SET deleted_by = $2, updated_at = now()
		 WHERE id = $1 AND deleted_by IS NULL`,
		id, actor,
	)
	if err != nil {
		r.logger.Error("failed to mark delivery deleted", zap.Uint64("delivery_id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Entity: "delivery", ID: id}
	}
	return nil
}
