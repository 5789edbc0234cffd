package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDBIdempotencyStoreCleanupExpiredDeletesOnlyExpiredRows(t *testing.T) {
	store, db := newDBIdempotencyStoreForTest(t)
	now := time.Now().UTC()

	records := []domain.IdempotencyRecord{
		{Scope: "register", IdempotencyKey: "k1", FingerprintHash: "f1", Status: "completed", ExpiresAt: now.Add(-time.Hour)},
		{Scope: "register", IdempotencyKey: "k2", FingerprintHash: "f2", Status: "new", ExpiresAt: now.Add(-2 * time.Minute)},
		{Scope: "register", IdempotencyKey: "k3", FingerprintHash: "f3", Status: "new", ExpiresAt: now.Add(2 * time.Hour)},
	}
	for i := range records {
		if err := db.Create(&records[i]).Error; err != nil {
			t.Fatalf("create record %d: %v", i, err)
		}
	}

	deleted, err := store.CleanupExpired(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("cleanup expired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted rows, got %d", deleted)
	}

	var remaining []domain.IdempotencyRecord
	if err := db.Order("id ASC").Find(&remaining).Error; err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining row, got %d", len(remaining))
	}
	if remaining[0].IdempotencyKey != "k3" {
		t.Fatalf("expected unexpired row to remain, got key=%s", remaining[0].IdempotencyKey)
	}
}

func TestDBIdempotencyStoreCleanupExpiredHonorsBatchSize(t *testing.T) {
	store, db := newDBIdempotencyStoreForTest(t)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		rec := domain.IdempotencyRecord{
			Scope:           "scope",
			IdempotencyKey:  fmt.Sprintf("k-%d", i),
			FingerprintHash: fmt.Sprintf("f-%d", i),
			Status:          "completed",
			ExpiresAt:       now.Add(-time.Minute),
		}
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("create expired record %d: %v", i, err)
		}
	}

	deleted, err := store.CleanupExpired(context.Background(), now, 1)
	if err != nil {
		t.Fatalf("cleanup expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row with batch=1, got %d", deleted)
	}

	var count int64
	if err := db.Model(&domain.IdempotencyRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count remaining: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", count)
	}
}

func newDBIdempotencyStoreForTest(t *testing.T) (*DBIdempotencyStore, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.IdempotencyRecord{}); err != nil {
		t.Fatalf("migrate idempotency record: %v", err)
	}
	return NewDBIdempotencyStore(db), db
}

func TestDBIdempotencyStoreBeginCompleteReplay(t *testing.T) {
	store, _ := newDBIdempotencyStoreForTest(t)
	ctx := context.Background()

	first, err := store.Begin(ctx, "create_payment:42", "key-1", "fp-a", time.Hour)
	if err != nil || first.State != IdempotencyStateNew {
		t.Fatalf("expected new, got %+v %v", first, err)
	}
	inFlight, err := store.Begin(ctx, "create_payment:42", "key-1", "fp-a", time.Hour)
	if err != nil || inFlight.State != IdempotencyStateInProgress {
		t.Fatalf("expected in_progress, got %+v %v", inFlight, err)
	}
	conflict, err := store.Begin(ctx, "create_payment:42", "key-1", "fp-b", time.Hour)
	if err != nil || conflict.State != IdempotencyStateConflict {
		t.Fatalf("expected conflict, got %+v %v", conflict, err)
	}

	body := []byte(`{"success":true,"redirect_url":"https://pay.example/tr_1"}`)
	if err := store.Complete(ctx, "create_payment:42", "key-1", "fp-a", CachedHTTPResponse{StatusCode: 200, ContentType: "application/json", Body: body}, time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}
	replay, err := store.Begin(ctx, "create_payment:42", "key-1", "fp-a", time.Hour)
	if err != nil || replay.State != IdempotencyStateReplay || replay.Cached == nil {
		t.Fatalf("expected replay, got %+v %v", replay, err)
	}
	if replay.Cached.StatusCode != 200 || string(replay.Cached.Body) != string(body) {
		t.Fatalf("unexpected cached response %+v", replay.Cached)
	}
}

func TestDBIdempotencyStoreExpiredKeyStartsOver(t *testing.T) {
	store, _ := newDBIdempotencyStoreForTest(t)
	ctx := context.Background()
	base := time.Now().UTC()
	store.now = func() time.Time { return base }

	if _, err := store.Begin(ctx, "s", "k", "fp-a", time.Minute); err != nil {
		t.Fatalf("begin: %v", err)
	}
	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	res, err := store.Begin(ctx, "s", "k", "fp-b", time.Minute)
	if err != nil || res.State != IdempotencyStateNew {
		t.Fatalf("expected new after expiry, got %+v %v", res, err)
	}
}
