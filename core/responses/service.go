// Package responses keeps the append-only ledger of replies attached to
// incidents.
package responses

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"incident-desk/core/apperr"
	"incident-desk/core/notify"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

const maxDescriptionLen = 10000

type Notifier interface {
	Notify(event, to string, data notify.Data) error
}

type Service struct {
	tx             store.Transactor
	incidents      store.IncidentsStore
	responses      store.ResponsesStore
	notifier       Notifier
	notifyReporter bool
	logger         *utils.Logger
}

type Reply struct {
	Response *store.Response
	Warning  error
}

// NewService builds the ledger. With notifyReporter set, the reporter is
// emailed when someone else responds.
func NewService(tx store.Transactor, incidents store.IncidentsStore, responses store.ResponsesStore, notifier Notifier, notifyReporter bool, logger *utils.Logger) *Service {
	return &Service{
		tx:             tx,
		incidents:      incidents,
		responses:      responses,
		notifier:       notifier,
		notifyReporter: notifyReporter,
		logger:         logger,
	}
}

// Respond stores a reply from responderUserID. The incident status is left
// as it is.
func (s *Service) Respond(ctx context.Context, incidentID string, responderUserID int64, description string) (*Reply, error) {
	incidentID = strings.TrimSpace(incidentID)
	description = strings.TrimSpace(description)
	switch {
	case incidentID == "":
		return nil, apperr.Validation("responses.incidentRequired", "incident id is required")
	case description == "":
		return nil, apperr.Validation("responses.descriptionRequired", "response text is required")
	case utf8.RuneCountInString(description) > maxDescriptionLen:
		return nil, apperr.Validation("responses.descriptionTooLong", "response text is too long")
	}
	var (
		resp             *store.Response
		inc              *store.Incident
		reporterUsername string
	)
	err := s.tx.WithinTx(ctx, func(r *store.Repos) error {
		var err error
		inc, err = r.Incidents.GetIncidentByExternalID(ctx, incidentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return incidentNotFound()
			}
			return err
		}
		responder, err := r.Users.Get(ctx, responderUserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("responses.responderNotFound", "responder does not exist")
			}
			return err
		}
		if inc.ReporterUserID != responder.ID {
			reporter, err := r.Users.Get(ctx, inc.ReporterUserID)
			switch {
			case err == nil:
				reporterUsername = reporter.Username
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		resp = &store.Response{
			IncidentID:        inc.IncidentID,
			ResponderUserID:   responder.ID,
			ResponderEmail:    responder.Email,
			ResponderUsername: responder.Username,
			Description:       description,
			CreatedAt:         utils.NowUTC(),
		}
		if _, err := r.Responses.CreateResponse(ctx, resp); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return incidentNotFound()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	s.logger.Printf("response %d on incident %s by %s", resp.ResponseID, resp.IncidentID, resp.ResponderUsername)
	reply := &Reply{Response: resp}
	if s.notifyReporter && s.notifier != nil && inc.ReporterUserID != resp.ResponderUserID {
		reply.Warning = s.notifier.Notify(notify.EventResponseReceived, inc.ReporterEmail, notify.Data{
			Username:    reporterUsername,
			Title:       inc.Title,
			Description: resp.Description,
			Status:      inc.Status,
			Responder:   resp.ResponderUsername,
			Timestamp:   resp.CreatedAt,
		})
		if reply.Warning != nil {
			s.logger.Warnf("responses: notification to %s: %v", inc.ReporterEmail, reply.Warning)
		}
	}
	return reply, nil
}

// ListForIncident returns the replies in the order they were written.
func (s *Service) ListForIncident(ctx context.Context, incidentID string) ([]store.Response, error) {
	incidentID = strings.TrimSpace(incidentID)
	if incidentID == "" {
		return nil, apperr.Validation("responses.incidentRequired", "incident id is required")
	}
	if _, err := s.incidents.GetIncidentByExternalID(ctx, incidentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, incidentNotFound()
		}
		return nil, apperr.Storage(err)
	}
	items, err := s.responses.ListResponses(ctx, incidentID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if items == nil {
		items = []store.Response{}
	}
	return items, nil
}

func incidentNotFound() error {
	return apperr.NotFound("responses.incidentNotFound", "incident not found")
}

func wrap(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
