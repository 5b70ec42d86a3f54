package handlers

import (
	"net/http"

	"server/internal/domain"
)

// ListTemplates returns the active injectable templates. Skeletons are
// omitted from the list view.
func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.principal(w, r); !ok {
		return
	}
	rawType := r.URL.Query().Get("type")
	if rawType != "" && !domain.AdvertorialType(rawType).Valid() {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", "unknown advertorial type")
		return
	}
	templates, err := a.Templates.ListActive(r.Context(), domain.AdvertorialType(rawType))
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list templates")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load templates")
		return
	}
	items := make([]map[string]any, 0, len(templates))
	for _, template := range templates {
		items = append(items, map[string]any{
			"id":               template.ID,
			"name":             template.Name,
			"advertorial_type": template.Type,
			"created_at":       template.CreatedAt,
			"updated_at":       template.UpdatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
