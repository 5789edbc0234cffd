package mollie

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	StatusOpen     = "open"
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
	StatusFailed   = "failed"
)

// Amount is a money value as the API encodes it: a currency code and a string with
// exactly two decimals.
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

func NewAmount(value decimal.Decimal, currency string) Amount {
	return Amount{Currency: strings.ToUpper(currency), Value: value.StringFixed(2)}
}

func (a Amount) Decimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", a.Value, err)
	}
	return d, nil
}

// Metadata is the object attached to a payment at creation and echoed back on every read.
// Extra1 carries the component|paymentarea|itemid|userid identity of the local record.
type Metadata struct {
	Tool   string `json:"tool,omitempty"`
	Extra1 string `json:"extra1"`
}

type CreatePaymentRequest struct {
	Amount      Amount   `json:"amount"`
	Description string   `json:"description"`
	RedirectURL string   `json:"redirectUrl"`
	WebhookURL  string   `json:"webhookUrl"`
	Metadata    Metadata `json:"metadata"`
	// Method is sent only when the payer picked one; the checkout offers all otherwise.
	Method string `json:"method,omitempty"`
}

type Link struct {
	Href string `json:"href"`
	Type string `json:"type"`
}

type PaymentLinks struct {
	Self     *Link `json:"self,omitempty"`
	Checkout *Link `json:"checkout,omitempty"`
}

// Payment is the provider's view of a payment.
type Payment struct {
	ID          string       `json:"id"`
	Mode        string       `json:"mode"`
	Status      string       `json:"status"`
	Amount      Amount       `json:"amount"`
	Description string       `json:"description"`
	Method      string       `json:"method,omitempty"`
	Metadata    *Metadata    `json:"metadata"`
	Links       PaymentLinks `json:"_links"`
}

func (p *Payment) CheckoutURL() string {
	if p == nil || p.Links.Checkout == nil {
		return ""
	}
	return p.Links.Checkout.Href
}

// Extra1 returns the identity string the payment was created with, empty when absent.
func (p *Payment) Extra1() string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	return p.Metadata.Extra1
}

type Image struct {
	Size1x string `json:"size1x"`
	Size2x string `json:"size2x"`
	SVG    string `json:"svg,omitempty"`
}

type Method struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	MinimumAmount *Amount `json:"minimumAmount"`
	MaximumAmount *Amount `json:"maximumAmount"`
	Status        string  `json:"status"`
	Image         Image   `json:"image"`
}

// Accepts reports whether amount lies inside the method's minimum and maximum.
// A missing bound is treated as open.
func (m Method) Accepts(amount decimal.Decimal) bool {
	if m.MinimumAmount != nil {
		min, err := m.MinimumAmount.Decimal()
		if err != nil || amount.LessThan(min) {
			return false
		}
	}
	if m.MaximumAmount != nil {
		max, err := m.MaximumAmount.Decimal()
		if err != nil || amount.GreaterThan(max) {
			return false
		}
	}
	return true
}

type methodList struct {
	Count    int `json:"count"`
	Embedded struct {
		Methods []Method `json:"methods"`
	} `json:"_embedded"`
}

// APIError is the problem document the API returns on non-2xx responses.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("mollie api error %d", e.StatusCode)
	if e.Title != "" {
		msg += " " + e.Title
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	return msg
}
