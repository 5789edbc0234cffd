package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sandeepkv93/paygw-mollie/internal/http/middleware"
	"github.com/sandeepkv93/paygw-mollie/internal/http/response"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

type PaymentServiceInterface interface {
	CreatePayment(ctx context.Context, in service.CreatePaymentInput) service.CreatePaymentResult
	GetMethods(ctx context.Context, component, paymentArea string, itemID uint) ([]service.MethodView, error)
	PayPageData(ctx context.Context, component, paymentArea string, itemID uint, description string) (*service.PayPage, error)
}

type PaymentHandler struct {
	svc     PaymentServiceInterface
	cookies *security.CookieManager
}

func NewPaymentHandler(svc PaymentServiceInterface, cookies *security.CookieManager) *PaymentHandler {
	return &PaymentHandler{svc: svc, cookies: cookies}
}

type createPaymentRequest struct {
	Component       string `json:"component"`
	PaymentArea     string `json:"paymentarea"`
	ItemID          uint   `json:"itemid"`
	Description     string `json:"description"`
	PaymentMethodID string `json:"paymentmethodid,omitempty"`
	BankID          *int   `json:"bankid,omitempty"`
}

type payPageResponse struct {
	*service.PayPage
	Message string           `json:"message,omitempty"`
	Notice  *security.Notice `json:"notice,omitempty"`
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.PayerIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user", nil)
		return
	}
	var req createPaymentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if !componentRe.MatchString(req.Component) || !paymentAreaRe.MatchString(req.PaymentArea) {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid component or paymentarea", nil)
		return
	}

	result := h.svc.CreatePayment(r.Context(), service.CreatePaymentInput{
		UserID:          userID,
		Component:       req.Component,
		PaymentArea:     req.PaymentArea,
		ItemID:          req.ItemID,
		Description:     strings.TrimSpace(req.Description),
		PaymentMethodID: req.PaymentMethodID,
		BankID:          req.BankID,
	})
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "payment.create",
		ActorUserID: observability.ActorUserID(userID),
		TargetType:  req.Component + ":" + req.PaymentArea,
		TargetID:    formatUint(req.ItemID),
		Action:      "create",
		Outcome:     outcome,
	}, "payment_method", req.PaymentMethodID)
	response.JSON(w, r, http.StatusOK, result)
}

func (h *PaymentHandler) Methods(w http.ResponseWriter, r *http.Request) {
	item, err := parseItemParams(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	methods, err := h.svc.GetMethods(r.Context(), item.Component, item.PaymentArea, item.ItemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"items": methods})
}

// PayPage returns what the method selection page renders, together with any notice the
// return flow left behind.
func (h *PaymentHandler) PayPage(w http.ResponseWriter, r *http.Request) {
	item, err := parseItemParams(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	description := strings.TrimSpace(r.URL.Query().Get("description"))
	page, err := h.svc.PayPageData(r.Context(), item.Component, item.PaymentArea, item.ItemID, description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := payPageResponse{PayPage: page}
	if page.NoPaymentMethods {
		out.Message = service.MessageNoPaymentMethods
	}
	if h.cookies != nil {
		if n, ok := h.cookies.PopNotice(w, r); ok {
			out.Notice = &n
		}
	}
	response.JSON(w, r, http.StatusOK, out)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payment request", nil)
	case errors.Is(err, service.ErrConfiguration):
		response.Error(w, r, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "payment gateway is not configured for this item", nil)
	case errors.Is(err, service.ErrRemoteCall):
		response.Error(w, r, http.StatusBadGateway, "DEPENDENCY_UNREADY", "payment provider unavailable", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", service.MessageInternalError, nil)
	}
}
