package handlers

import (
	"net/http"
)

// CreditStatus reports how much of the real-generation budget is spent.
func (a *App) CreditStatus(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	a.json(w, http.StatusOK, a.Credits.Status(r.Context()))
}

// CreditReset zeroes the counter. Intended for operators after topping up
// the provider balance.
func (a *App) CreditReset(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	snap, err := a.Credits.Reset(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("credit reset failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to reset credits")
		return
	}
	a.json(w, http.StatusOK, snap)
}
