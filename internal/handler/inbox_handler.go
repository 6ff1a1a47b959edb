// internal/handler/inbox_handler.go
package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

// Receiver processes one raw inbound payload.
type Receiver interface {
	Receive(ctx context.Context, payload []byte) (*service.ReceiveResult, error)
}

// InboxHandler serves the inbound mail webhook.
type InboxHandler struct {
	Inbox        Receiver
	APIToken     string
	MaxBodyBytes int64
	logger       *zap.Logger
}

func NewInboxHandler(inbox Receiver, apiToken string, maxBodyBytes int64, logger *zap.Logger) *InboxHandler {
	return &InboxHandler{
		Inbox:        inbox,
		APIToken:     apiToken,
		MaxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Receive handles POST /api/1/inbox/{api_token}. Callers see "OK" or an
// unauthorized status; unknown campaigns count as unauthorized.
func (h *InboxHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(chi.URLParam(r, "api_token")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body io.Reader = r.Body
	if h.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if _, err := h.Inbox.Receive(r.Context(), payload); err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		var malformed *appErrors.ErrMalformedPayload
		switch {
		case errors.As(err, &notFound):
			h.logger.Info("inbound mail for unknown campaign", zap.Error(err))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case errors.As(err, &malformed):
			h.logger.Warn("malformed inbound payload", zap.Error(err))
			http.Error(w, "Bad Request", http.StatusBadRequest)
		default:
			h.logger.Error("failed to process inbound mail", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// authorized compares in constant time. An unset token never matches.
func (h *InboxHandler) authorized(token string) bool {
	if h.APIToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.APIToken)) == 1
}
