package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const IncidentStatusReported = "Reported"

type Incident struct {
	ID             int64     `json:"id"`
	IncidentID     string    `json:"incidentId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	ReporterUserID int64     `json:"reporterUserId"`
	ReporterEmail  string    `json:"reporterEmail"`
	Response       *string   `json:"response"`
	CreatedAt      time.Time `json:"createdAt"`
}

type IncidentFilter struct {
	ReporterUserID  int64
	ExcludeReporter int64
}

type IncidentsStore interface {
	CreateIncident(ctx context.Context, incident *Incident) (int64, error)
	GetIncidentByExternalID(ctx context.Context, incidentID string) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	SetLegacyResponse(ctx context.Context, incidentID string, text string) error
}

type incidentsStore struct {
	db DBTX
}

func NewIncidentsStore(db DBTX) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, incident_id, title, description, status, reporter_user_id, reporter_email, response, created_at`

func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident) (int64, error) {
	if strings.TrimSpace(incident.Status) == "" {
		incident.Status = IncidentStatusReported
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents(incident_id, title, description, status, reporter_user_id, reporter_email, response, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		incident.IncidentID, incident.Title, incident.Description, incident.Status, incident.ReporterUserID,
		incident.ReporterEmail, nullableString(incident.Response), incident.CreatedAt).Scan(&incident.ID)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return 0, ErrConflict
		case IsForeignKeyViolation(err):
			return 0, ErrNotFound
		}
		return 0, err
	}
	return incident.ID, nil
}

func (s *incidentsStore) GetIncidentByExternalID(ctx context.Context, incidentID string) (*Incident, error) {
	if strings.TrimSpace(incidentID) == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE incident_id=$1`, incidentID)
	var inc Incident
	if err := scanIncident(row, &inc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inc, nil
}

// ListIncidents returns incidents in insertion order.
func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.ReporterUserID > 0 {
		args = append(args, filter.ReporterUserID)
		clauses = append(clauses, "reporter_user_id="+placeholder(len(args)))
	}
	if filter.ExcludeReporter > 0 {
		args = append(args, filter.ExcludeReporter)
		clauses = append(clauses, "reporter_user_id<>"+placeholder(len(args)))
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		var inc Incident
		if err := scanIncident(rows, &inc); err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) SetLegacyResponse(ctx context.Context, incidentID string, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE incidents SET response=$1 WHERE incident_id=$2`, text, incidentID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner, inc *Incident) error {
	var response sql.NullString
	if err := row.Scan(&inc.ID, &inc.IncidentID, &inc.Title, &inc.Description, &inc.Status,
		&inc.ReporterUserID, &inc.ReporterEmail, &response, &inc.CreatedAt); err != nil {
		return err
	}
	inc.Response = stringPtr(response)
	inc.CreatedAt = inc.CreatedAt.UTC()
	return nil
}
