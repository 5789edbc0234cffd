package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
)

const (
	idempotencyStatusNew       = "new"
	idempotencyStatusCompleted = "completed"
)

// DBIdempotencyStore keeps idempotency records in the database for deployments without Redis.
type DBIdempotencyStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBIdempotencyStore(db *gorm.DB) *DBIdempotencyStore {
	return &DBIdempotencyStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DBIdempotencyStore) Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyBeginResult, error) {
	var result IdempotencyBeginResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		var rec domain.IdempotencyRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope = ? AND idempotency_key = ?", scope, key).
			First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first use of this key
		case err != nil:
			return err
		case now.After(rec.ExpiresAt):
			if err := tx.Delete(&domain.IdempotencyRecord{}, rec.ID).Error; err != nil {
				return err
			}
		case rec.FingerprintHash != fingerprint:
			result = IdempotencyBeginResult{State: IdempotencyStateConflict}
			return nil
		case rec.Status == idempotencyStatusCompleted:
			result = IdempotencyBeginResult{
				State: IdempotencyStateReplay,
				Cached: &CachedHTTPResponse{
					StatusCode:  rec.ResponseStatus,
					ContentType: rec.ContentType,
					Body:        append([]byte(nil), rec.ResponseBody...),
				},
			}
			return nil
		default:
			result = IdempotencyBeginResult{State: IdempotencyStateInProgress}
			return nil
		}

		fresh := domain.IdempotencyRecord{
			Scope:           scope,
			IdempotencyKey:  key,
			FingerprintHash: fingerprint,
			Status:          idempotencyStatusNew,
			ExpiresAt:       now.Add(ttl),
		}
		if err := tx.Create(&fresh).Error; err != nil {
			return err
		}
		result = IdempotencyBeginResult{State: IdempotencyStateNew}
		return nil
	})
	if err != nil {
		return IdempotencyBeginResult{}, fmt.Errorf("begin idempotent request: %w", err)
	}
	return result, nil
}

func (s *DBIdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, response CachedHTTPResponse, ttl time.Duration) error {
	res := s.db.WithContext(ctx).Model(&domain.IdempotencyRecord{}).
		Where("scope = ? AND idempotency_key = ? AND fingerprint_hash = ?", scope, key, fingerprint).
		Updates(map[string]any{
			"status":          idempotencyStatusCompleted,
			"response_status": response.StatusCode,
			"content_type":    response.ContentType,
			"response_body":   response.Body,
			"expires_at":      s.now().Add(ttl),
		})
	if res.Error != nil {
		return fmt.Errorf("complete idempotent request: %w", res.Error)
	}
	return nil
}

// CleanupExpired deletes at most batchSize expired records and reports how many went.
func (s *DBIdempotencyStore) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&domain.IdempotencyRecord{}).
		Where("expires_at <= ?", now).
		Order("id asc").
		Limit(batchSize).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
