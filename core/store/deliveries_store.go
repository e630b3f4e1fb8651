package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	DeliveryStatusSent    = "sent"
	DeliveryStatusFailed  = "failed"
	DeliveryStatusDropped = "dropped"
)

type NotificationDelivery struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type DeliveriesStore interface {
	AddNotificationDelivery(ctx context.Context, item *NotificationDelivery) (int64, error)
	ListNotificationDeliveries(ctx context.Context, limit int) ([]NotificationDelivery, error)
}

type deliveriesStore struct {
	db DBTX
}

func NewDeliveriesStore(db DBTX) DeliveriesStore {
	return &deliveriesStore{db: db}
}

func (s *deliveriesStore) AddNotificationDelivery(ctx context.Context, item *NotificationDelivery) (int64, error) {
	if item == nil {
		return 0, errors.New("nil delivery")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_deliveries(event_type, recipient, subject, status, error_text, created_at)
		VALUES($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		strings.TrimSpace(item.EventType), strings.TrimSpace(item.Recipient), previewText(item.Subject),
		strings.TrimSpace(item.Status), previewText(item.Error), item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return 0, err
	}
	return item.ID, nil
}

// ListNotificationDeliveries returns the newest deliveries first.
func (s *deliveriesStore) ListNotificationDeliveries(ctx context.Context, limit int) ([]NotificationDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, recipient, subject, status, error_text, created_at
		FROM notification_deliveries
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]NotificationDelivery, 0, limit)
	for rows.Next() {
		var item NotificationDelivery
		if err := rows.Scan(&item.ID, &item.EventType, &item.Recipient, &item.Subject, &item.Status, &item.Error, &item.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func previewText(s string) string {
	s = strings.TrimSpace(s)
	const max = 500
	if len(s) > max {
		return s[:max]
	}
	return s
}
