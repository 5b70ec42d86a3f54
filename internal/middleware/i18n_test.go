package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		country  string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "es-MX")
			},
			country: "US",
			want:    "es",
		},
		{
			name: "accept-language used",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "de-DE,en;q=0.8")
			},
			want: "de",
		},
		{
			name:    "country default applies",
			country: "BR",
			want:    "pt",
		},
		{
			name:     "fallback wins when nothing matches",
			fallback: "fr",
			want:     "fr",
		},
		{
			name: "unsupported language falls through to en",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "zz")
			},
			want: "en",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(r)
			}
			got := detectLocale(r, tc.fallback, tc.country)
			if got != tc.want {
				t.Fatalf("detectLocale = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveCountryHeaderHints(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-IPCountry", "de")
	if got := ResolveCountry(r, nil); got != "DE" {
		t.Fatalf("ResolveCountry = %q, want DE", got)
	}
}

func TestResolveCountryLookupFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	lookup := func(ip string) (string, error) {
		if ip != "203.0.113.9" {
			t.Fatalf("lookup got ip %q", ip)
		}
		return "fr", nil
	}
	if got := ResolveCountry(r, lookup); got != "FR" {
		t.Fatalf("ResolveCountry = %q, want FR", got)
	}
}

func TestI18NMiddlewareStoresLocale(t *testing.T) {
	var gotLocale, gotCountry string
	handler := I18N("en", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Language", "pt-BR")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if gotLocale != "pt" {
		t.Fatalf("locale = %q, want pt", gotLocale)
	}
	if gotCountry != "BR" {
		t.Fatalf("country = %q, want BR", gotCountry)
	}
}
