package store

import (
	"context"
	"time"
)

type Response struct {
	ResponseID        int64     `json:"responseId"`
	IncidentID        string    `json:"incidentId"`
	ResponderUserID   int64     `json:"responderUserId"`
	ResponderEmail    string    `json:"responderEmail"`
	ResponderUsername string    `json:"responderUsername"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ResponsesStore is append-only: responses are never edited or removed.
type ResponsesStore interface {
	CreateResponse(ctx context.Context, resp *Response) (int64, error)
	ListResponses(ctx context.Context, incidentID string) ([]Response, error)
}

type responsesStore struct {
	db DBTX
}

func NewResponsesStore(db DBTX) ResponsesStore {
	return &responsesStore{db: db}
}

func (s *responsesStore) CreateResponse(ctx context.Context, resp *Response) (int64, error) {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO responses(incident_id, responder_user_id, description, responder_email, responder_username, created_at)
		VALUES($1,$2,$3,$4,$5,$6)
		RETURNING response_id`,
		resp.IncidentID, resp.ResponderUserID, resp.Description, resp.ResponderEmail, resp.ResponderUsername, resp.CreatedAt).Scan(&resp.ResponseID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return resp.ResponseID, nil
}

func (s *responsesStore) ListResponses(ctx context.Context, incidentID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT response_id, incident_id, responder_user_id, description, responder_email, responder_username, created_at
		FROM responses
		WHERE incident_id=$1
		ORDER BY response_id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Response
	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ResponseID, &r.IncidentID, &r.ResponderUserID, &r.Description, &r.ResponderEmail, &r.ResponderUsername, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		res = append(res, r)
	}
	return res, rows.Err()
}
