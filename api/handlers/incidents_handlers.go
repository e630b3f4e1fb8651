package handlers

import (
	"net/http"

	"incident-desk/core/apperr"
	"incident-desk/core/auth"
	"incident-desk/core/incidents"
	"incident-desk/core/responses"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

type IncidentsHandler struct {
	incidents *incidents.Service
	responses *responses.Service
	logger    *utils.Logger
}

func NewIncidentsHandler(is *incidents.Service, rs *responses.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{incidents: is, responses: rs, logger: logger}
}

func currentSession(w http.ResponseWriter, r *http.Request) (*store.SessionRecord, bool) {
	sr, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return nil, false
	}
	return sr, true
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	sr, ok := currentSession(w, r)
	if !ok {
		return
	}
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.incidents.CreateIncident(r.Context(), sr.UserID, payload.Title, payload.Description)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarning(map[string]any{"incident": sub.Incident}, sub.Warning))
}

func (h *IncidentsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	sr, ok := currentSession(w, r)
	if !ok {
		return
	}
	items, err := h.incidents.ListOwn(r.Context(), sr.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	sr, ok := currentSession(w, r)
	if !ok {
		return
	}
	items, err := h.incidents.ListOthers(r.Context(), sr.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sr, ok := currentSession(w, r)
	if !ok {
		return
	}
	inc, err := h.incidents.FindByExternalID(r.Context(), urlParam(r, "incidentId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !incidents.IsVisibleTo(*inc, sr.UserID) {
		// hidden incidents look exactly like missing ones
		writeError(w, r, h.logger, apperr.NotFound("incidents.notFound", "incident not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incident": inc,
		"own":      incidents.IsOwnedBy(*inc, sr.UserID),
	})
}

func (h *IncidentsHandler) AttachLegacyResponse(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(w, r); !ok {
		return
	}
	var payload struct {
		Response string `json:"response"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	inc, err := h.incidents.AttachLegacyResponse(r.Context(), urlParam(r, "incidentId"), payload.Response)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

func (h *IncidentsHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	sr, ok := currentSession(w, r)
	if !ok {
		return
	}
	var payload struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reply, err := h.responses.Respond(r.Context(), urlParam(r, "incidentId"), sr.UserID, payload.Description)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarning(map[string]any{"response": reply.Response}, reply.Warning))
}

func (h *IncidentsHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(w, r); !ok {
		return
	}
	items, err := h.responses.ListForIncident(r.Context(), urlParam(r, "incidentId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
