// internal/controller/subscription_controller.go
package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

// Unsubscriber deactivates a subscription by token.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, token string) (*service.UnsubscribeResult, error)
}

type SubscriptionController struct {
	Subscriptions Unsubscriber
	logger        *zap.Logger
}

func NewSubscriptionController(subscriptions Unsubscriber, logger *zap.Logger) *SubscriptionController {
	return &SubscriptionController{Subscriptions: subscriptions, logger: logger}
}

// Unsubscribe handles GET /subscription/{token}/unsubscribe. Repeated
// visits return the same confirmation.
func (c *SubscriptionController) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	res, err := c.Subscriptions.Unsubscribe(r.Context(), token)
	if err != nil {
		var notFound *appErrors.ErrSubscriptionNotFound
		if errors.As(err, &notFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		c.logger.Error("unsubscribe failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Message))
}
