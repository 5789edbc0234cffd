package observability

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type AuditInput struct {
	EventName   string
	ActorUserID string
	TargetType  string
	TargetID    string
	Action      string
	Outcome     string
	Reason      string
}

// EmitAudit writes one structured audit line for a user-visible payment event.
func EmitAudit(r *http.Request, in AuditInput, kv ...any) {
	attrs := []any{
		"event_name", in.EventName,
		"actor_user_id", in.ActorUserID,
		"target_type", in.TargetType,
		"target_id", in.TargetID,
		"action", in.Action,
		"outcome", in.Outcome,
		"reason", in.Reason,
	}
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
		attrs = append(attrs, "request_id", chimiddleware.GetReqID(ctx), "path", r.URL.Path)
	}
	attrs = append(attrs, kv...)
	slog.Default().InfoContext(ctx, "audit", attrs...)
}

func ActorUserID(userID uint) string {
	if userID == 0 {
		return "anonymous"
	}
	return strconv.FormatUint(uint64(userID), 10)
}
