package responses

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"incident-desk/core/apperr"
	"incident-desk/core/incidents"
	"incident-desk/core/notify"
	"incident-desk/core/store"
	"incident-desk/core/store/storetest"
	"incident-desk/core/utils"

	"github.com/stretchr/testify/require"
)

type note struct {
	event string
	to    string
	data  notify.Data
}

type fakeNotifier struct {
	sent []note
	err  error
}

func (f *fakeNotifier) Notify(event, to string, data notify.Data) error {
	f.sent = append(f.sent, note{event, to, data})
	return f.err
}

type fixture struct {
	db        *sql.DB
	incidents *incidents.Service
	responses *Service
	notes     *fakeNotifier
}

func newFixture(t *testing.T, notifyReporter bool) *fixture {
	t.Helper()
	db := storetest.Open(t)
	tx := store.NewTxManager(db)
	logger := utils.NewDiscardLogger()
	n := &fakeNotifier{}
	return &fixture{
		db:        db,
		incidents: incidents.NewService(tx, store.NewIncidentsStore(db), nil, logger),
		responses: NewService(tx, store.NewIncidentsStore(db), store.NewResponsesStore(db), n, notifyReporter, logger),
		notes:     n,
	}
}

func TestRespondScenario(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	bob := storetest.CreateUser(t, f.db, "bob", "bob@example.com")
	carol := storetest.CreateUser(t, f.db, "carol", "carol@example.com")
	sub, err := f.incidents.CreateIncident(ctx, bob.ID, "Leak", "pipe burst")
	require.NoError(t, err)
	incidentID := sub.Incident.IncidentID

	reply, err := f.responses.Respond(ctx, incidentID, carol.ID, "Sent a plumber")
	require.NoError(t, err)
	require.NoError(t, reply.Warning)

	list, err := f.responses.ListForIncident(ctx, incidentID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "carol", list[0].ResponderUsername)
	require.Equal(t, "carol@example.com", list[0].ResponderEmail)
	require.Equal(t, "Sent a plumber", list[0].Description)

	inc, err := f.incidents.FindByExternalID(ctx, incidentID)
	require.NoError(t, err)
	require.Equal(t, store.IncidentStatusReported, inc.Status)

	require.Len(t, f.notes.sent, 1)
	require.Equal(t, notify.EventResponseReceived, f.notes.sent[0].event)
	require.Equal(t, "bob@example.com", f.notes.sent[0].to)
	require.Equal(t, "carol", f.notes.sent[0].data.Responder)
	require.Equal(t, "bob", f.notes.sent[0].data.Username)

	msg, err := notify.DefaultTemplates().Render(f.notes.sent[0].event, f.notes.sent[0].to, f.notes.sent[0].data)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(msg.Body, "Hello bob,"), msg.Body)
}

func TestResponderSnapshotSurvivesProfileChange(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	bob := storetest.CreateUser(t, f.db, "bob", "bob@example.com")
	sub, err := f.incidents.CreateIncident(ctx, bob.ID, "Leak", "pipe burst")
	require.NoError(t, err)

	_, err = f.responses.Respond(ctx, sub.Incident.IncidentID, bob.ID, "fixed it myself")
	require.NoError(t, err)
	require.NoError(t, store.NewUsersStore(f.db).UpdateEmail(ctx, bob.ID, "robert@example.com"))

	list, err := f.responses.ListForIncident(ctx, sub.Incident.IncidentID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "bob@example.com", list[0].ResponderEmail)
	require.Empty(t, f.notes.sent)
}

func TestSelfResponseDoesNotNotify(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	bob := storetest.CreateUser(t, f.db, "bob", "bob@example.com")
	sub, err := f.incidents.CreateIncident(ctx, bob.ID, "Leak", "pipe burst")
	require.NoError(t, err)
	_, err = f.responses.Respond(ctx, sub.Incident.IncidentID, bob.ID, "update")
	require.NoError(t, err)
	require.Empty(t, f.notes.sent)
}

func TestRespondOrder(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	bob := storetest.CreateUser(t, f.db, "bob", "bob@example.com")
	carol := storetest.CreateUser(t, f.db, "carol", "carol@example.com")
	sub, err := f.incidents.CreateIncident(ctx, bob.ID, "Leak", "pipe burst")
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.responses.Respond(ctx, sub.Incident.IncidentID, carol.ID, text)
		require.NoError(t, err)
	}
	list, err := f.responses.ListForIncident(ctx, sub.Incident.IncidentID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "one", list[0].Description)
	require.Equal(t, "three", list[2].Description)
}

func TestRespondErrors(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	bob := storetest.CreateUser(t, f.db, "bob", "bob@example.com")
	sub, err := f.incidents.CreateIncident(ctx, bob.ID, "Leak", "pipe burst")
	require.NoError(t, err)

	_, err = f.responses.Respond(ctx, "", bob.ID, "text")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.responses.Respond(ctx, sub.Incident.IncidentID, bob.ID, "   ")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.responses.Respond(ctx, "no-such-incident", bob.ID, "text")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.responses.Respond(ctx, sub.Incident.IncidentID, 777, "text")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.responses.ListForIncident(ctx, "no-such-incident")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := f.responses.ListForIncident(ctx, sub.Incident.IncidentID)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestRespondNotificationFailureKeepsResponse(t *testing.T) {
	f := newFixture(t, true)
	f.notes.err = apperr.Notification("notify.queueFull", errors.New("full"))
	ctx := context.Background()
	bob := storetest.CreateUser(t, f.db, "bob", "bob@example.com")
	carol := storetest.CreateUser(t, f.db, "carol", "carol@example.com")
	sub, err := f.incidents.CreateIncident(ctx, bob.ID, "Leak", "pipe burst")
	require.NoError(t, err)

	reply, err := f.responses.Respond(ctx, sub.Incident.IncidentID, carol.ID, "on it")
	require.NoError(t, err)
	require.ErrorIs(t, reply.Warning, apperr.ErrNotification)
	list, err := f.responses.ListForIncident(ctx, sub.Incident.IncidentID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
