package incidents

import "incident-desk/core/store"

// IsVisibleTo decides whether viewer may see incident. Every signed-in user
// sees every incident; tightening access happens here and nowhere else.
func IsVisibleTo(incident store.Incident, viewerID int64) bool {
	return viewerID > 0
}

// IsOwnedBy reports whether viewer filed the incident.
func IsOwnedBy(incident store.Incident, viewerID int64) bool {
	return incident.ReporterUserID == viewerID
}

func filterVisible(items []store.Incident, viewerID int64) []store.Incident {
	res := make([]store.Incident, 0, len(items))
	for _, inc := range items {
		if IsVisibleTo(inc, viewerID) {
			res = append(res, inc)
		}
	}
	return res
}
