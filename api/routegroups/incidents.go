package routegroups

import (
	"incident-desk/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterIncidents(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("POST", "/", g.SessionPerm("incidents.create", incidents.Create))
		incidentsRouter.MethodFunc("GET", "/mine", g.SessionPerm("incidents.view", incidents.ListMine))
		incidentsRouter.MethodFunc("GET", "/public", g.SessionPerm("incidents.view", incidents.ListPublic))
		incidentsRouter.MethodFunc("GET", "/{incidentId}", g.SessionPerm("incidents.view", incidents.Get))
		incidentsRouter.MethodFunc("PUT", "/{incidentId}/legacy-response", g.SessionPerm("incidents.legacy_respond", incidents.AttachLegacyResponse))
		incidentsRouter.MethodFunc("POST", "/{incidentId}/responses", g.SessionPerm("incidents.respond", incidents.SubmitResponse))
		incidentsRouter.MethodFunc("GET", "/{incidentId}/responses", g.SessionPerm("incidents.view", incidents.ListResponses))
	})
}

func RegisterNotifications(apiRouter chi.Router, g Guards, notifications *handlers.NotificationsHandler) {
	apiRouter.Route("/notifications", func(notificationsRouter chi.Router) {
		notificationsRouter.MethodFunc("GET", "/deliveries", g.SessionPerm("notifications.view", notifications.ListDeliveries))
	})
}
