package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandeepkv93/paygw-mollie/internal/http/middleware"
	"github.com/sandeepkv93/paygw-mollie/internal/http/response"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
	"github.com/sandeepkv93/paygw-mollie/internal/repository"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

type CallbackServiceInterface interface {
	HandleReturn(ctx context.Context, ref service.CallbackRef) service.ReturnOutcome
	HandleWebhook(ctx context.Context, ref service.CallbackRef, orderID string) error
}

type CallbackHandler struct {
	svc     CallbackServiceInterface
	cookies *security.CookieManager
}

func NewCallbackHandler(svc CallbackServiceInterface, cookies *security.CookieManager) *CallbackHandler {
	return &CallbackHandler{svc: svc, cookies: cookies}
}

// Return is where the payer's browser lands after checkout. It always answers with a 303
// and leaves the message in the notice cookie.
func (h *CallbackHandler) Return(w http.ResponseWriter, r *http.Request) {
	ref, err := parseCallbackRef(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	out := h.svc.HandleReturn(r.Context(), ref)

	userID, _ := middleware.PayerIDFromContext(r.Context())
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "payment.return",
		ActorUserID: observability.ActorUserID(userID),
		TargetType:  "transaction",
		TargetID:    formatUint(ref.InternalID),
		Action:      "return",
		Outcome:     out.NoticeLevel,
		Reason:      out.Reason,
	}, "status", out.Status)

	if h.cookies != nil && out.Message != "" {
		h.cookies.SetNotice(w, security.Notice{Type: out.NoticeLevel, Message: out.Message})
	}
	http.Redirect(w, r, out.RedirectURL, http.StatusSeeOther)
}

// Webhook acknowledges with 200 only when reconciliation succeeded; the provider retries
// anything else. The body stays empty either way.
func (h *CallbackHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ref, err := parseCallbackRef(r)
	orderID := strings.TrimSpace(r.FormValue("id"))
	if err == nil {
		err = h.svc.HandleWebhook(r.Context(), ref, orderID)
	}
	if err != nil {
		result := webhookFailureReason(err)
		slog.WarnContext(r.Context(), "webhook rejected",
			"internal_id", ref.InternalID,
			"order_id", orderID,
			"reason", result,
			"error", err,
		)
		observability.RecordWebhookAck(r.Context(), result)
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}
	observability.RecordWebhookAck(r.Context(), "ok")
	w.WriteHeader(http.StatusOK)
}

func webhookFailureReason(err error) string {
	if _, ok := service.IsValidationError(err); ok {
		return "invalid"
	}
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, service.ErrRecordMismatch), errors.Is(err, service.ErrInvalidArguments):
		return "invalid"
	case errors.Is(err, service.ErrRemoteCall):
		return "remote_error"
	default:
		return "error"
	}
}

func formatUint(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
