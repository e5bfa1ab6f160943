package report

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
)

var _ Repository = (*repository)(nil)

// Repository 只統計已完成且未刪除的訂單
type Repository interface {
	// GarmentSales 回傳期間內各服飾的售出件數，含相對前一期的變化
	GarmentSales(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.GarmentSales, error)

	// MonthlyIncome 回傳期間內按月份分組的收入
	MonthlyIncome(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.MonthlyIncome, error)

	// StoreSales 回傳期間內各分店的出貨件數
	StoreSales(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.StoreSales, error)
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

func (r *repository) GarmentSales(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.GarmentSales, error) {
	// 前一期與目標期間等長，緊接在目標期間之前
	prevFrom := from.Add(-to.Sub(from))

	rows, err := r.querier(tx).Query(ctx,
		`SELECT g.id, g.name,
		        COALESCE(SUM(oc.amount) FILTER (WHERE o.created_at >= $1 AND o.created_at < $2), 0) AS sold,
		        COALESCE(SUM(oc.amount) FILTER (WHERE o.created_at >= $3 AND o.created_at < $1), 0) AS prev_sold
		 FROM garments g
		 JOIN order_cloth oc ON oc.garment_id = g.id
		 JOIN orders o ON o.id = oc.order_id
		 WHERE o.status = 'COMPLETED' AND o.deleted_by IS NULL
		   AND o.created_at >= $3 AND o.created_at < $2
		 GROUP BY g.id, g.name
		 HAVING COALESCE(SUM(oc.amount) FILTER (WHERE o.created_at >= $1 AND o.created_at < $2), 0) > 0
		 ORDER BY sold DESC`,
		from, to, prevFrom,
	)
	if err != nil {
		r.logger.Error("failed to query garment sales", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []models.GarmentSales
	for rows.Next() {
		var (
			s        models.GarmentSales
			prevSold uint64
		)
		if err = rows.Scan(&s.GarmentID, &s.Name, &s.SoldCount, &prevSold); err != nil {
			return nil, err
		}
		if prevSold > 0 {
			change := (float64(s.SoldCount) - float64(prevSold)) / float64(prevSold) * 100
			s.ChangePercent = &change
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

func (r *repository) MonthlyIncome(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.MonthlyIncome, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT date_trunc('month', created_at) AS month,
		        COALESCE(SUM(price), 0),
		        count(*)
		 FROM orders
		 WHERE status = 'COMPLETED' AND deleted_by IS NULL
		   AND created_at >= $1 AND created_at < $2
		 GROUP BY month
		 ORDER BY month ASC`,
		from, to,
	)
	if err != nil {
		r.logger.Error("failed to query monthly income", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []models.MonthlyIncome
	for rows.Next() {
		var m models.MonthlyIncome
		if err = rows.Scan(&m.Month, &m.Income, &m.Orders); err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

func (r *repository) StoreSales(ctx context.Context, tx pgx.Tx, from, to time.Time) ([]models.StoreSales, error) {
	rows, err := r.querier(tx).Query(ctx,
		`SELECT s.id, s.address, COALESCE(SUM(oc.amount), 0) AS sold
		 FROM stores s
		 JOIN order_cloth oc ON oc.store_id = s.id
		 JOIN orders o ON o.id = oc.order_id
		 WHERE o.status = 'COMPLETED' AND o.deleted_by IS NULL
		   AND o.created_at >= $1 AND o.created_at < $2
		 GROUP BY s.id, s.address
		 ORDER BY sold DESC`,
		from, to,
	)
	if err != nil {
		r.logger.Error("failed to query store sales", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []models.StoreSales
	for rows.Next() {
		var s models.StoreSales
		if err = rows.Scan(&s.StoreID, &s.Address, &s.SoldCount); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	return result, rows.Err()
}
