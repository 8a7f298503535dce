package handlers

import "net/http"

type controlNetType struct {
	Type       int    `json:"type"`
	Text       string `json:"text"`
	IsSelected bool   `json:"is_selected"`
}

// ControlNetTypes lists the catalog for the client's type picker.
func (a *App) ControlNetTypes(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.profiles.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := make([]controlNetType, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, controlNetType{Type: p.Type, Text: p.Label(), IsSelected: p.IsSelected})
	}
	a.ok(w, r, items)
}

// Frequency reports the caller's credit balance.
func (a *App) Frequency(w http.ResponseWriter, r *http.Request) {
	balance, err := a.credits.Balance(r.Context(), a.currentUserID(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.ok(w, r, map[string]int{"frequency": balance})
}
