package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"

	"incident-desk/config"
	"incident-desk/core/apperr"
	"incident-desk/core/auth"
	"incident-desk/core/identity"
	"incident-desk/core/incidents"
	"incident-desk/core/notify"
	"incident-desk/core/rbac"
	"incident-desk/core/responses"
	"incident-desk/core/store"
	"incident-desk/core/store/storetest"
	"incident-desk/core/utils"

	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu   sync.Mutex
	msgs []notify.Message
	full bool
}

func (q *recordingQueue) Enqueue(msg notify.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return apperr.Notification("notify.queueFull", notify.ErrQueueFull)
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *recordingQueue) setFull(v bool) {
	q.mu.Lock()
	q.full = v
	q.mu.Unlock()
}

func (q *recordingQueue) events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, m := range q.msgs {
		out = append(out, m.Event+":"+m.To)
	}
	return out
}

type testEnv struct {
	db    *sql.DB
	srv   *httptest.Server
	queue *recordingQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storetest.Open(t)
	cfg := &config.AppConfig{
		DBDriver:  "sqlite",
		PublicURL: "http://desk.example.com",
		CSRFKey:   "csrf-key-for-tests-0123456789",
		Security:  config.SecurityConfig{LoginBurst: 50},
	}
	cfg.Notify.OnResponse = true
	logger := utils.NewDiscardLogger()
	queue := &recordingQueue{}
	notifier := notify.NewNotifier(nil, queue, logger)
	users := store.NewUsersStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	sessions := store.NewSessionsStore(db)
	tx := store.NewTxManager(db)
	issuer, err := auth.NewResetTokenIssuer(cfg.ResetSecret(), cfg.EffectiveResetTTL())
	require.NoError(t, err)
	srv := NewServer(cfg, Deps{
		DB:             db,
		Policy:         rbac.NewPolicy(rbac.DefaultRoles()),
		Users:          users,
		Sessions:       sessions,
		Deliveries:     store.NewDeliveriesStore(db),
		SessionManager: auth.NewSessionManager(sessions, cfg, logger),
		Identity:       identity.NewService(cfg, tx, users, issuer, notifier, logger),
		Incidents:      incidents.NewService(tx, incidentsStore, notifier, logger),
		Responses:      responses.NewService(tx, incidentsStore, store.NewResponsesStore(db), notifier, cfg.Notify.OnResponse, logger),
	}, logger)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &testEnv{db: db, srv: hs, queue: queue}
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func (e *testEnv) newClient(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (c *client) registerAndLogin(username, email string) {
	c.t.Helper()
	code, body := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "email": email, "password": "Secret123!", "confirm_password": "Secret123!",
	})
	require.Equal(c.t, http.StatusCreated, code, body)
	c.login(username, "Secret123!")
}

func (c *client) login(username, password string) {
	c.t.Helper()
	code, body := c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password})
	require.Equal(c.t, http.StatusOK, code, body)
	c.csrf, _ = body["csrf_token"].(string)
	require.NotEmpty(c.t, c.csrf)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func items(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["items"].([]any)
	require.True(t, ok, "items must be a JSON array: %v", body)
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		out = append(out, it.(map[string]any))
	}
	return out
}

func TestIncidentWorkflowEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	carol := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")
	carol.registerAndLogin("carol", "carol@example.com")

	code, body := bob.do(http.MethodPost, "/api/incidents/", map[string]string{
		"title": "Phishing email", "description": "Got a suspicious link",
	})
	require.Equal(t, http.StatusCreated, code, body)
	require.Nil(t, body["warning"])
	inc := body["incident"].(map[string]any)
	incidentID := inc["incidentId"].(string)
	require.NotEmpty(t, incidentID)
	require.Equal(t, "Reported", inc["status"])
	require.Equal(t, "bob@example.com", inc["reporterEmail"])

	code, body = bob.do(http.MethodGet, "/api/incidents/mine", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, items(t, body), 1)

	code, body = bob.do(http.MethodGet, "/api/incidents/public", nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, items(t, body))

	code, body = carol.do(http.MethodGet, "/api/incidents/public", nil)
	require.Equal(t, http.StatusOK, code)
	public := items(t, body)
	require.Len(t, public, 1)
	require.Equal(t, incidentID, public[0]["incidentId"])

	code, body = carol.do(http.MethodGet, "/api/incidents/"+incidentID, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["own"])

	code, body = carol.do(http.MethodPost, "/api/incidents/"+incidentID+"/responses", map[string]string{
		"description": "Do not click it",
	})
	require.Equal(t, http.StatusCreated, code, body)
	resp := body["response"].(map[string]any)
	require.Equal(t, "carol", resp["responderUsername"])
	require.Equal(t, "carol@example.com", resp["responderEmail"])

	code, body = bob.do(http.MethodGet, "/api/incidents/"+incidentID+"/responses", nil)
	require.Equal(t, http.StatusOK, code)
	list := items(t, body)
	require.Len(t, list, 1)
	require.Equal(t, "Do not click it", list[0]["description"])

	require.Contains(t, env.queue.events(), notify.EventIncidentSubmitted+":bob@example.com")
	require.Contains(t, env.queue.events(), notify.EventResponseReceived+":bob@example.com")
}

func TestSubmitIncidentReportsNotificationWarning(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")
	env.queue.setFull(true)

	code, body := bob.do(http.MethodPost, "/api/incidents/", map[string]string{
		"title": "Lost laptop", "description": "Left on the train",
	})
	require.Equal(t, http.StatusCreated, code, body)
	warn, ok := body["warning"].(map[string]any)
	require.True(t, ok, "expected warning: %v", body)
	require.Equal(t, "notify.queueFull", warn["code"])

	code, body = bob.do(http.MethodGet, "/api/incidents/mine", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, items(t, body), 1)
}

func TestIncidentValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")

	code, body := bob.do(http.MethodPost, "/api/incidents/", map[string]string{"title": "", "description": "x"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "incidents.titleRequired", errorCode(body))

	code, body = bob.do(http.MethodGet, "/api/incidents/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "incidents.notFound", errorCode(body))

	code, body = bob.do(http.MethodPost, "/api/incidents/does-not-exist/responses", map[string]string{"description": "hi"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "incidents.notFound", errorCode(body))
}

func TestAuthErrors(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")

	anon := env.newClient(t)
	code, body := anon.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "bob", "email": "other@example.com", "password": "Secret123!",
	})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "auth.usernameTaken", errorCode(body))

	code, body = anon.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "nobody", "password": "Secret123!"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "auth.userNotFound", errorCode(body))

	code, body = anon.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "bob", "password": "wrong-pass"})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "auth.wrongPassword", errorCode(body))

	code, body = anon.do(http.MethodGet, "/api/incidents/mine", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "auth.unauthorized", errorCode(body))
}

func TestStateChangeRequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")
	bob.csrf = ""

	code, body := bob.do(http.MethodPost, "/api/incidents/", map[string]string{"title": "t", "description": "d"})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "auth.csrfInvalid", errorCode(body))
}

func TestLoginRateLimitAnswersJSON(t *testing.T) {
	env := newTestEnv(t)
	anon := env.newClient(t)
	var code int
	var body map[string]any
	for i := 0; i < 60; i++ {
		code, body = anon.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "nobody", "password": "x"})
		if code == http.StatusTooManyRequests {
			break
		}
	}
	require.Equal(t, http.StatusTooManyRequests, code)
	require.Equal(t, "auth.rateLimited", errorCode(body))
}

func TestUnknownRoleIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ph := auth.MustHashPassword("Ghost-pass-1", "")
	_, err := store.NewUsersStore(env.db).Create(context.Background(), &store.User{
		Username: "ghost", Email: "ghost@example.com", PasswordHash: ph.Hash, Salt: ph.Salt, Role: "auditor",
	})
	require.NoError(t, err)

	ghost := env.newClient(t)
	ghost.login("ghost", "Ghost-pass-1")
	code, body := ghost.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "auth.unknownRole", errorCode(body))
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")

	code, body := bob.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, code)
	user := body["user"].(map[string]any)
	require.Equal(t, "bob", user["username"])

	code, _ = bob.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = bob.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestDeliveriesAreAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")
	code, body := bob.do(http.MethodGet, "/api/notifications/deliveries", nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "auth.forbidden", errorCode(body))

	ph := auth.MustHashPassword("Admin-pass-1", "")
	_, err := store.NewUsersStore(env.db).Create(context.Background(), &store.User{
		Username: "root", Email: "root@example.com", PasswordHash: ph.Hash, Salt: ph.Salt, Role: rbac.RoleAdmin,
	})
	require.NoError(t, err)
	_, err = store.NewDeliveriesStore(env.db).AddNotificationDelivery(context.Background(), &store.NotificationDelivery{
		EventType: notify.EventRegistration, Recipient: "bob@example.com", Subject: "Welcome", Status: store.DeliveryStatusSent,
	})
	require.NoError(t, err)

	admin := env.newClient(t)
	admin.login("root", "Admin-pass-1")
	code, body = admin.do(http.MethodGet, "/api/notifications/deliveries?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, items(t, body), 1)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	bob := env.newClient(t)
	bob.registerAndLogin("bob", "bob@example.com")

	anon := env.newClient(t)
	code, body := anon.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "bob@example.com"})
	require.Equal(t, http.StatusOK, code, body)

	var link string
	env.queue.mu.Lock()
	for _, m := range env.queue.msgs {
		if m.Event == notify.EventPasswordReset {
			link = m.Body
		}
	}
	env.queue.mu.Unlock()
	require.Contains(t, link, "http://desk.example.com/reset-password?token=")

	code, body = anon.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "auth.emailNotFound", errorCode(body))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
