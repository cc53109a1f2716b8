package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/riplimit/backend/internal/models"
)

type NotificationLister interface {
	ListNotifications(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*models.Notification, error)
}

type NotificationHandler struct {
	Notifications NotificationLister
	Logger        *slog.Logger
}

// --- GET /api/v1/notifications ---

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	before, limit, ok := listParams(w, r)
	if !ok {
		return
	}
	list, err := h.Notifications.ListNotifications(r.Context(), userID, before, limit)
	if err != nil {
		writeDomainError(w, h.Logger, "list notifications", err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
