package handlers

import (
	"net/http"

	"server/internal/sqlinline"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	var one int
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QHealthCheck).Scan(&one); err != nil {
		a.error(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
