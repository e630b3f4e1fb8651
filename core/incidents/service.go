package incidents

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"incident-desk/core/apperr"
	"incident-desk/core/notify"
	"incident-desk/core/store"
	"incident-desk/core/utils"

	"github.com/gofrs/uuid/v5"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 10000
)

type Notifier interface {
	Notify(event, to string, data notify.Data) error
}

type Service struct {
	tx        store.Transactor
	incidents store.IncidentsStore
	notifier  Notifier
	logger    *utils.Logger
	newID     func() (string, error)
}

// Submission is a stored incident plus a soft warning when the
// confirmation email could not be queued.
type Submission struct {
	Incident *store.Incident
	Warning  error
}

func NewService(tx store.Transactor, incidents store.IncidentsStore, notifier Notifier, logger *utils.Logger) *Service {
	return &Service{
		tx:        tx,
		incidents: incidents,
		notifier:  notifier,
		logger:    logger,
		newID: func() (string, error) {
			id, err := uuid.NewV4()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

func (s *Service) CreateIncident(ctx context.Context, reporterUserID int64, title, description string) (*Submission, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	switch {
	case title == "":
		return nil, apperr.Validation("incidents.titleRequired", "title is required")
	case description == "":
		return nil, apperr.Validation("incidents.descriptionRequired", "description is required")
	case utf8.RuneCountInString(title) > maxTitleLen:
		return nil, apperr.Validation("incidents.titleTooLong", "title is too long")
	case utf8.RuneCountInString(description) > maxDescriptionLen:
		return nil, apperr.Validation("incidents.descriptionTooLong", "description is too long")
	}
	externalID, err := s.newID()
	if err != nil {
		return nil, apperr.Storage(err)
	}
	var (
		inc      *store.Incident
		reporter *store.User
	)
	err = s.tx.WithinTx(ctx, func(r *store.Repos) error {
		u, err := r.Users.Get(ctx, reporterUserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return reporterNotFound()
			}
			return err
		}
		reporter = u
		inc = &store.Incident{
			IncidentID:     externalID,
			Title:          title,
			Description:    description,
			Status:         store.IncidentStatusReported,
			ReporterUserID: u.ID,
			ReporterEmail:  u.Email,
			CreatedAt:      utils.NowUTC(),
		}
		if _, err := r.Incidents.CreateIncident(ctx, inc); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return reporterNotFound()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	s.logger.Printf("incident %s reported by %s", inc.IncidentID, reporter.Username)
	warn := s.notify(notify.EventIncidentSubmitted, inc.ReporterEmail, notify.Data{
		Username:    reporter.Username,
		Title:       inc.Title,
		Description: inc.Description,
		Status:      inc.Status,
		Timestamp:   inc.CreatedAt,
	})
	return &Submission{Incident: inc, Warning: warn}, nil
}

// ListOwn returns the incidents viewer filed, oldest first.
func (s *Service) ListOwn(ctx context.Context, viewerID int64) ([]store.Incident, error) {
	items, err := s.incidents.ListIncidents(ctx, store.IncidentFilter{ReporterUserID: viewerID})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return nonNil(filterVisible(items, viewerID)), nil
}

// ListOthers returns every visible incident viewer did not file, oldest
// first.
func (s *Service) ListOthers(ctx context.Context, viewerID int64) ([]store.Incident, error) {
	items, err := s.incidents.ListIncidents(ctx, store.IncidentFilter{ExcludeReporter: viewerID})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return nonNil(filterVisible(items, viewerID)), nil
}

func (s *Service) ListAll(ctx context.Context) ([]store.Incident, error) {
	items, err := s.incidents.ListIncidents(ctx, store.IncidentFilter{})
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return nonNil(items), nil
}

func (s *Service) FindByExternalID(ctx context.Context, incidentID string) (*store.Incident, error) {
	incidentID = strings.TrimSpace(incidentID)
	if incidentID == "" {
		return nil, apperr.Validation("incidents.idRequired", "incident id is required")
	}
	inc, err := s.incidents.GetIncidentByExternalID(ctx, incidentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, incidentNotFound()
		}
		return nil, apperr.Storage(err)
	}
	return inc, nil
}

// AttachLegacyResponse overwrites the single free-text reply stored on the
// incident row. Concurrent writers race; the last one wins.
func (s *Service) AttachLegacyResponse(ctx context.Context, incidentID, text string) (*store.Incident, error) {
	incidentID = strings.TrimSpace(incidentID)
	text = strings.TrimSpace(text)
	switch {
	case incidentID == "":
		return nil, apperr.Validation("incidents.idRequired", "incident id is required")
	case text == "":
		return nil, apperr.Validation("incidents.responseRequired", "response text is required")
	}
	var inc *store.Incident
	err := s.tx.WithinTx(ctx, func(r *store.Repos) error {
		if err := r.Incidents.SetLegacyResponse(ctx, incidentID, text); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return incidentNotFound()
			}
			return err
		}
		var err error
		inc, err = r.Incidents.GetIncidentByExternalID(ctx, incidentID)
		return err
	})
	if err != nil {
		return nil, wrap(err)
	}
	return inc, nil
}

func (s *Service) notify(event, to string, data notify.Data) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Notify(event, to, data); err != nil {
		s.logger.Warnf("incidents: %s notification to %s: %v", event, to, err)
		return err
	}
	return nil
}

func reporterNotFound() error {
	return apperr.NotFound("incidents.reporterNotFound", "reporter does not exist")
}

func incidentNotFound() error {
	return apperr.NotFound("incidents.notFound", "incident not found")
}

func nonNil(items []store.Incident) []store.Incident {
	if items == nil {
		return []store.Incident{}
	}
	return items
}

func wrap(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
