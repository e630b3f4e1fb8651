package handlers

import (
	"net/http"

	"incident-desk/core/apperr"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

const maxDeliveriesPage = 500

type NotificationsHandler struct {
	deliveries store.DeliveriesStore
	logger     *utils.Logger
}

func NewNotificationsHandler(deliveries store.DeliveriesStore, logger *utils.Logger) *NotificationsHandler {
	return &NotificationsHandler{deliveries: deliveries, logger: logger}
}

func (h *NotificationsHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	if limit <= 0 || limit > maxDeliveriesPage {
		limit = maxDeliveriesPage
	}
	items, err := h.deliveries.ListNotificationDeliveries(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, apperr.Storage(err))
		return
	}
	if items == nil {
		items = []store.NotificationDelivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
