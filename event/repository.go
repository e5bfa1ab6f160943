package event

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	// Create 以事件 ID 搶佔處理權，回傳 false 表示事件已被佔用或處理過
	Create(ctx context.Context, tx pgx.Tx, event *models.Event) (bool, error)
	GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error)
	MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error
	// Delete 釋放處理權，讓事件重投時可以再次處理
	Delete(ctx context.Context, tx pgx.Tx, id string) error
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

func (r *repository) Create(ctx context.Context, tx pgx.Tx, event *models.Event) (bool, error) {
	tag, err := r.querier(tx).Exec(ctx,
		`INSERT INTO events (id, type, data, processed, created_at, updated_at)
		 VALUES ($1, $2, $3, false, now(), now())
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Type, event.Data,
	)
	if err != nil {
		r.logger.Error("failed to create event", zap.String("event_id", event.ID), zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) GetByID(ctx context.Context, tx pgx.Tx, id string) (*models.Event, error) {
	var e models.Event
	err := r.querier(tx).QueryRow(ctx,
		`SELECT id, type, data, processed, created_at, updated_at
		 FROM events
		 WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Type, &e.Data, &e.Processed, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get event", zap.String("event_id", id), zap.Error(err))
		return nil, err
	}
	return &e, nil
}

func (r *repository) MarkAsProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := r.querier(tx).Exec(ctx,
		`UPDATE events
		 SET processed = true, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		r.logger.Error("failed to mark event as processed", zap.String("event_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := r.querier(tx).Exec(ctx,
		`DELETE FROM events WHERE id = $1`,
		id,
	)
	if err != nil {
		r.logger.Error("failed to delete event", zap.String("event_id", id), zap.Error(err))
		return err
	}
	return nil
}
