package handlers

import (
	"net/http"
	"testing"
	"time"

	"server/internal/domain"
)

func TestListTemplatesFiltersByType(t *testing.T) {
	f := newTestApp()
	now := time.Now()
	f.app.Templates = &stubTemplateRepo{items: []domain.InjectableTemplate{
		{ID: "t1", Name: "Classic Listicle", Type: domain.AdvertorialTypeListicle, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "t2", Name: "Long Form", Type: domain.AdvertorialTypeAdvertorial, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}}

	rr := serve(f.app.ListTemplates, authedRequest(t, "GET", "/v1/templates?type=listicle", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	body := decodeBody(t, rr)
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	item := items[0].(map[string]any)
	if item["id"] != "t1" {
		t.Fatalf("unexpected item: %v", item)
	}
	if _, ok := item["html_skeleton"]; ok {
		t.Fatal("list view must not expose skeletons")
	}
}

func TestListTemplatesRejectsUnknownType(t *testing.T) {
	f := newTestApp()
	rr := serve(f.app.ListTemplates, authedRequest(t, "GET", "/v1/templates?type=banner", ""))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
}

func TestCreditUsage(t *testing.T) {
	f := newTestApp()
	f.sql.usage = 20

	rr := serve(f.app.CreditUsage, authedRequest(t, "GET", "/v1/credits", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	body := decodeBody(t, rr)
	if body["current_usage"] != float64(20) || body["limit"] != float64(30) {
		t.Fatalf("unexpected usage: %v", body)
	}
}

func TestHealth(t *testing.T) {
	f := newTestApp()
	rr := serve(f.app.Health, authedRequest(t, "GET", "/v1/healthz", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	f.sql.unhealthy = true
	rr = serve(f.app.Health, authedRequest(t, "GET", "/v1/healthz", ""))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
