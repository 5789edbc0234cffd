package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
)

var (
	ErrTransactionNotFound = errors.New("transaction record not found")
	ErrOrderIDAlreadySet   = errors.New("transaction order id already set")
)

type TransactionListQuery struct {
	PageRequest
	UserID    uint
	Component string
	Status    string
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id uint) (*domain.Transaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.Transaction, error)
	FindByIDAndOrderID(ctx context.Context, id uint, orderID string) (*domain.Transaction, error)
	SetOrderID(ctx context.Context, id uint, orderID string) error
	// CompareAndSwapStatus moves the record from one status to another and reports
	// whether this caller performed the transition.
	CompareAndSwapStatus(ctx context.Context, id uint, from, to string) (bool, error)
	ListPaged(ctx context.Context, q TransactionListQuery) (PageResult[domain.Transaction], error)
}

type GormTransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if tx.OrderID == "" {
		tx.OrderID = domain.UnsetOrderID
	}
	if tx.Status == "" {
		tx.Status = domain.TransactionStatusInit
	}
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "transaction", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "create", "success")
	return nil
}

func (r *GormTransactionRepository) FindByID(ctx context.Context, id uint) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		return nil, r.findError(ctx, "find_by_id", err)
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "find_by_id", "success")
	return &tx, nil
}

func (r *GormTransactionRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Transaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" || orderID == domain.UnsetOrderID {
		observability.RecordRepositoryOperation(ctx, "transaction", "find_by_order_id", "not_found")
		return nil, ErrTransactionNotFound
	}
	var tx domain.Transaction
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&tx).Error; err != nil {
		return nil, r.findError(ctx, "find_by_order_id", err)
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "find_by_order_id", "success")
	return &tx, nil
}

func (r *GormTransactionRepository) FindByIDAndOrderID(ctx context.Context, id uint, orderID string) (*domain.Transaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" || orderID == domain.UnsetOrderID {
		observability.RecordRepositoryOperation(ctx, "transaction", "find_by_id_and_order_id", "not_found")
		return nil, ErrTransactionNotFound
	}
	var tx domain.Transaction
	if err := r.db.WithContext(ctx).Where("id = ? AND order_id = ?", id, orderID).First(&tx).Error; err != nil {
		return nil, r.findError(ctx, "find_by_id_and_order_id", err)
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "find_by_id_and_order_id", "success")
	return &tx, nil
}

func (r *GormTransactionRepository) SetOrderID(ctx context.Context, id uint, orderID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND order_id = ?", id, domain.UnsetOrderID).
		Updates(map[string]any{"order_id": orderID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "transaction", "set_order_id", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		observability.RecordRepositoryOperation(ctx, "transaction", "set_order_id", "conflict")
		return ErrOrderIDAlreadySet
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "set_order_id", "success")
	return nil
}

func (r *GormTransactionRepository) CompareAndSwapStatus(ctx context.Context, id uint, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "transaction", "cas_status", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "transaction", "cas_status", "lost")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "cas_status", "success")
	return true, nil
}

func (r *GormTransactionRepository) ListPaged(ctx context.Context, q TransactionListQuery) (PageResult[domain.Transaction], error) {
	req := normalizePageRequest(q.PageRequest)
	query := r.db.WithContext(ctx).Model(&domain.Transaction{})
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if c := strings.TrimSpace(q.Component); c != "" {
		query = query.Where("component = ?", c)
	}
	if s := strings.TrimSpace(q.Status); s != "" {
		query = query.Where("status = ?", s)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "transaction", "list_paged", "error")
		return PageResult[domain.Transaction]{}, err
	}
	var items []domain.Transaction
	if err := query.Order("id desc").Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "transaction", "list_paged", "error")
		return PageResult[domain.Transaction]{}, err
	}
	observability.RecordRepositoryOperation(ctx, "transaction", "list_paged", "success")
	return PageResult[domain.Transaction]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}

func (r *GormTransactionRepository) findError(ctx context.Context, op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.RecordRepositoryOperation(ctx, "transaction", op, "not_found")
		return ErrTransactionNotFound
	}
	observability.RecordRepositoryOperation(ctx, "transaction", op, "error")
	return err
}
