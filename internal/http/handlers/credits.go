package handlers

import "net/http"

// CreditUsage reports the organization's usage against its current window.
func (a *App) CreditUsage(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	usage, err := a.Ledger.CurrentUsage(r.Context(), a.SQL, p.OrganizationID)
	if err != nil {
		a.Logger.Error().Err(err).Str("organization_id", p.OrganizationID).Msg("handlers: credit usage")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credit usage")
		return
	}
	a.json(w, http.StatusOK, usage)
}
