package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/sandeepkv93/paygw-mollie/internal/domain"
)

var (
	ErrPayableNotFound = errors.New("payable item not found")
	ErrAccountNotFound = errors.New("payment account not found")
	ErrGatewayDisabled = errors.New("mollie gateway disabled for account")
)

type accountEntry struct {
	ID        uint                  `mapstructure:"id"`
	Name      string                `mapstructure:"name"`
	Surcharge string                `mapstructure:"surcharge"`
	Mollie    *domain.GatewayConfig `mapstructure:"mollie"`
}

type payableEntry struct {
	Component   string `mapstructure:"component"`
	PaymentArea string `mapstructure:"paymentarea"`
	ItemID      uint   `mapstructure:"itemid"`
	Amount      string `mapstructure:"amount"`
	Currency    string `mapstructure:"currency"`
	Account     uint   `mapstructure:"account"`
	SuccessURL  string `mapstructure:"success_url"`
}

type catalogFile struct {
	Accounts []accountEntry `mapstructure:"accounts"`
	Payables []payableEntry `mapstructure:"payables"`
}

// Catalog resolves gateway accounts and payable items from a YAML file. The file is read on
// every call so edits made while the service runs are observed by the next request.
type Catalog struct {
	path string
}

func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

func (c *Catalog) load() (*catalogFile, error) {
	v := viper.New()
	v.SetConfigFile(c.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", c.path, err)
	}
	var out catalogFile
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", c.path, err)
	}
	return &out, nil
}

func (f *catalogFile) payable(component, paymentArea string, itemID uint) (*payableEntry, error) {
	for i := range f.Payables {
		p := &f.Payables[i]
		if p.Component == component && p.PaymentArea == paymentArea && p.ItemID == itemID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s/%d", ErrPayableNotFound, component, paymentArea, itemID)
}

func (f *catalogFile) account(id uint) (*accountEntry, error) {
	for i := range f.Accounts {
		if f.Accounts[i].ID == id {
			return &f.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, id)
}

// GatewayConfig returns the gateway configuration of the account the item is paid into.
func (c *Catalog) GatewayConfig(_ context.Context, component, paymentArea string, itemID uint) (domain.GatewayConfig, error) {
	f, err := c.load()
	if err != nil {
		return domain.GatewayConfig{}, err
	}
	p, err := f.payable(component, paymentArea, itemID)
	if err != nil {
		return domain.GatewayConfig{}, err
	}
	acc, err := f.account(p.Account)
	if err != nil {
		return domain.GatewayConfig{}, err
	}
	if acc.Mollie == nil {
		return domain.GatewayConfig{}, fmt.Errorf("%w: %d", ErrGatewayDisabled, acc.ID)
	}
	return *acc.Mollie, nil
}

// Payable returns the amount due for an item with the account surcharge applied and the
// result rounded to two decimals.
func (c *Catalog) Payable(_ context.Context, component, paymentArea string, itemID uint) (domain.Payable, error) {
	f, err := c.load()
	if err != nil {
		return domain.Payable{}, err
	}
	p, err := f.payable(component, paymentArea, itemID)
	if err != nil {
		return domain.Payable{}, err
	}
	acc, err := f.account(p.Account)
	if err != nil {
		return domain.Payable{}, err
	}
	cost, err := decimal.NewFromString(strings.TrimSpace(p.Amount))
	if err != nil {
		return domain.Payable{}, fmt.Errorf("parse amount for %s/%s/%d: %w", component, paymentArea, itemID, err)
	}
	surcharge := decimal.Zero
	if s := strings.TrimSpace(acc.Surcharge); s != "" {
		surcharge, err = decimal.NewFromString(s)
		if err != nil {
			return domain.Payable{}, fmt.Errorf("parse surcharge for account %d: %w", acc.ID, err)
		}
	}
	return domain.Payable{
		AccountID: acc.ID,
		Amount:    RoundedCost(cost, surcharge),
		Currency:  strings.ToUpper(strings.TrimSpace(p.Currency)),
	}, nil
}

// SuccessURL returns the configured landing page for an item, or "" when none is set.
func (c *Catalog) SuccessURL(_ context.Context, component, paymentArea string, itemID uint) (string, error) {
	f, err := c.load()
	if err != nil {
		return "", err
	}
	p, err := f.payable(component, paymentArea, itemID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(p.SuccessURL), nil
}

// RoundedCost applies a percentage surcharge and rounds half away from zero to cents.
func RoundedCost(cost, surchargePercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(surchargePercent.Div(decimal.NewFromInt(100)))
	return cost.Mul(factor).Round(2)
}
