package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/Mainsed/diplom-mag-back/driver"
	"github.com/Mainsed/diplom-mag-back/models"
	"github.com/Mainsed/diplom-mag-back/models/enum"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS stock_entries (
    id         BIGSERIAL PRIMARY KEY,
    garment_id BIGINT      NOT NULL,
    store_id   BIGINT      NOT NULL,
    size       TEXT        NOT NULL,
    quantity   BIGINT      NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    created_by TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_by TEXT,
    updated_at TIMESTAMPTZ,
    deleted_by TEXT,
    UNIQUE (garment_id, store_id, size)
);
CREATE TABLE IF NOT EXISTS stock_movements (
    id             BIGSERIAL PRIMARY KEY,
    garment_id     BIGINT      NOT NULL,
    store_id       BIGINT      NOT NULL,
    size           TEXT        NOT NULL,
    quantity       BIGINT      NOT NULL,
    type           TEXT        NOT NULL,
    reference_type TEXT        NOT NULL,
    reference_id   BIGINT      NOT NULL,
    created_by     TEXT        NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func setupRepo(t *testing.T) Repository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := driver.ConnectSQL(dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(db.Pool.Close)

	redisAddr := os.Getenv("TEST_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	cache, err := driver.ConnectRedis(redisAddr, "", 1)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	ctx := context.Background()
	if _, err = db.Pool.Exec(ctx, testSchema); err != nil {
		t.Fatalf("schema setup failed: %v", err)
	}
	if _, err = db.Pool.Exec(ctx, `TRUNCATE stock_entries, stock_movements`); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	if err = cache.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("cache flush failed: %v", err)
	}

	return NewRepository(db.Pool, cache, zap.NewNop())
}

func TestAdjust_UpThenDown(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	quantity, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Delta: 5, Actor: "tester"})
	if err != nil {
		t.Fatalf("Adjust up failed: %v", err)
	}
	if quantity != 5 {
		t.Errorf("expected quantity 5, got %d", quantity)
	}

	quantity, err = repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Delta: -3, Actor: "tester"})
	if err != nil {
		t.Fatalf("Adjust down failed: %v", err)
	}
	if quantity != 2 {
		t.Errorf("expected quantity 2, got %d", quantity)
	}

	found, err := repo.Find(ctx, nil, 1, 1, enum.SizeM)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found != 2 {
		t.Errorf("expected quantity 2, got %d", found)
	}
}

func TestAdjust_InsufficientStock(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Delta: 2, Actor: "tester"}); err != nil {
		t.Fatalf("Adjust up failed: %v", err)
	}

	_, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Delta: -5, Actor: "tester"})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// 失敗的調整不能動到數量
	found, err := repo.Find(ctx, nil, 1, 1, enum.SizeM)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found != 2 {
		t.Errorf("expected quantity 2, got %d", found)
	}
}

func TestAdjust_MissingEntry(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.Adjust(context.Background(), nil, AdjustParams{GarmentID: 9, StoreID: 9, Size: enum.SizeM, Delta: -1, Actor: "tester"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdjust_RequireEntryDoesNotCreate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 5, StoreID: 5, Size: enum.SizeM, Delta: 3, Actor: "tester", RequireEntry: true})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err = repo.Adjust(ctx, nil, AdjustParams{GarmentID: 5, StoreID: 5, Size: enum.SizeM, Delta: 1, Actor: "tester"}); err != nil {
		t.Fatalf("Adjust up failed: %v", err)
	}

	quantity, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 5, StoreID: 5, Size: enum.SizeM, Delta: 3, Actor: "tester", RequireEntry: true})
	if err != nil {
		t.Fatalf("Adjust with existing entry failed: %v", err)
	}
	if quantity != 4 {
		t.Errorf("expected quantity 4, got %d", quantity)
	}
}

func TestAdjust_ConcurrentNeverGoesNegative(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Delta: 10, Actor: "tester"}); err != nil {
		t.Fatalf("Adjust up failed: %v", err)
	}

	const attempts = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Delta: -1, Actor: "tester"})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected exactly 10 successful deductions, got %d", succeeded)
	}
	if insufficient != attempts-10 {
		t.Errorf("expected %d insufficient errors, got %d", attempts-10, insufficient)
	}

	found, err := repo.Find(ctx, nil, 1, 1, enum.SizeM)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found != 0 {
		t.Errorf("expected quantity 0, got %d", found)
	}
}

func TestFindAvailable_PicksLowestStore(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for _, storeID := range []uint64{3, 1, 2} {
		if _, err := repo.Adjust(ctx, nil, AdjustParams{GarmentID: 1, StoreID: storeID, Size: enum.SizeM, Delta: 5, Actor: "tester"}); err != nil {
			t.Fatalf("Adjust failed: %v", err)
		}
	}

	entry, err := repo.FindAvailable(ctx, nil, 1, enum.SizeM, 3)
	if err != nil {
		t.Fatalf("FindAvailable failed: %v", err)
	}
	if entry.StoreID != 1 {
		t.Errorf("expected store 1, got %d", entry.StoreID)
	}

	if _, err = repo.FindAvailable(ctx, nil, 1, enum.SizeM, 100); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for impossible minimum, got %v", err)
	}
}

func TestMovements_RoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	err := repo.CreateMovements(ctx, nil, []MovementParams{
		{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Quantity: 5, Type: enum.StockMovementTypeIn, ReferenceType: enum.StockMovementReferenceTypeDelivery, ReferenceID: 7, Actor: "tester"},
		{GarmentID: 2, StoreID: 1, Size: enum.SizeL, Quantity: 2, Type: enum.StockMovementTypeIn, ReferenceType: enum.StockMovementReferenceTypeDelivery, ReferenceID: 7, Actor: "tester"},
		{GarmentID: 1, StoreID: 1, Size: enum.SizeM, Quantity: 1, Type: enum.StockMovementTypeOut, ReferenceType: enum.StockMovementReferenceTypeOrder, ReferenceID: 9, Actor: "tester"},
	})
	if err != nil {
		t.Fatalf("CreateMovements failed: %v", err)
	}

	movements, err := repo.GetMovementsByReference(ctx, nil, enum.StockMovementReferenceTypeDelivery, 7)
	if err != nil {
		t.Fatalf("GetMovementsByReference failed: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	for _, movement := range movements {
		if movement.Type != enum.StockMovementTypeIn {
			t.Errorf("expected inbound movement, got %s", movement.Type)
		}
	}
}
