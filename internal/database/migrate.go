package database

import (
	"github.com/sandeepkv93/paygw-mollie/internal/domain"

	"gorm.io/gorm"
)

// Models lists every table the gateway owns, in creation order.
func Models() []any {
	return []any{
		&domain.Transaction{},
		&domain.LedgerPayment{},
		&domain.CallbackLog{},
		&domain.IdempotencyRecord{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

type TableStatus struct {
	Table  string
	Exists bool
}

func Status(db *gorm.DB) ([]TableStatus, error) {
	out := make([]TableStatus, 0, len(Models()))
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		out = append(out, TableStatus{Table: stmt.Schema.Table, Exists: db.Migrator().HasTable(m)})
	}
	return out, nil
}
