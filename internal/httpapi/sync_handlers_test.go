package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

const routeSeed = `
taxonomies: [category, post_tag]
translatable_taxonomies: [category]
languages:
  - {slug: en, name: English, locale: en_US, flag: us, order: 0}
  - {slug: fr, name: Français, locale: fr_FR, flag: fr, order: 1}
  - {slug: de, name: Deutsch, locale: de_DE, flag: de, order: 2}
terms:
  - {id: 1, name: News, slug: news, taxonomy: category, language: en}
  - {id: 2, name: Actualités, slug: actualites, taxonomy: category}
  - {id: 3, name: Go, slug: go, taxonomy: post_tag}
posts:
  - {id: 10, title: Hello, type: post, status: publish}
  - {id: 11, title: Bonjour, type: post, status: publish}
`

type routeFixture struct {
	handler  *echo.Echo
	store    *translation.MemoryStore
	nonces   *auth.NonceIssuer
	sessions map[string]string
}

func newRouteFixture(t *testing.T) *routeFixture {
	t.Helper()

	store, err := translation.LoadSeed([]byte(routeSeed))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}

	authStore := newRecordingAuthStore()
	sessions := map[string]string{}
	for _, role := range []string{auth.RoleEditor, auth.RoleAuthor, auth.RoleSubscriber} {
		user := seedUser(t, authStore, role, role, "")
		sessions[role] = openSession(t, authStore, user.UserID, time.Hour)
	}

	nonces := newTestNonces(t)
	server := NewServer(
		syncer.NewHandler(store, zerolog.Nop(), syncer.Options{}),
		authStore,
		nonces,
		zerolog.Nop(),
		Options{SessionCookie: testCookie},
	)
	return &routeFixture{handler: server.Handler(), store: store, nonces: nonces, sessions: sessions}
}

// do sends a request as role. An empty role sends no session cookie.
func (f *routeFixture) do(method, path, role, nonce, body string) *httptest.ResponseRecorder {
	sessionID := f.sessions[role]
	req := httptest.NewRequest(method, defaultAPIPrefix+path, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: sessionID})
	}
	if nonce != "" {
		req.Header.Set(nonceHeader, nonce)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *routeFixture) nonce(role string) string {
	return f.nonces.Create(auth.NonceActionREST, f.sessions[role], time.Now().UTC())
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, status, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != false || body["code"] != code {
		t.Fatalf("unexpected error envelope: %#v", body)
	}
	data, _ := body["data"].(map[string]any)
	if got, _ := data["status"].(float64); int(got) != status {
		t.Fatalf("expected data.status %d, got %#v", status, data["status"])
	}
	return data
}

func TestSyncRoutesAuthenticateBeforeValidatingBody(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	rec := fixture.do(http.MethodPost, "/taxonomy", "", "", `not json`)
	assertError(t, rec, http.StatusUnauthorized, syncer.CodeUnauthorized)

	if fixture.store.GroupCount(translation.ObjectTerm) != 0 {
		t.Fatalf("expected no groups after rejected request")
	}
}

func TestSyncRoutesEnforceCapabilities(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)

	rec := fixture.do(http.MethodPost, "/taxonomy", auth.RoleAuthor, fixture.nonce(auth.RoleAuthor), `{}`)
	assertError(t, rec, http.StatusForbidden, syncer.CodeForbidden)

	rec = fixture.do(http.MethodPost, "/posts", auth.RoleSubscriber, fixture.nonce(auth.RoleSubscriber), `{}`)
	assertError(t, rec, http.StatusForbidden, syncer.CodeForbidden)

	rec = fixture.do(http.MethodGet, "/languages", auth.RoleSubscriber, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected subscriber to read languages, got %d", rec.Code)
	}
}

func TestSyncRoutesRequireSessionBoundNonce(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	body := `{"source_post_id":10,"source_lang":"en","target_post_id":11,"target_lang":"fr"}`

	rec := fixture.do(http.MethodPost, "/posts", auth.RoleEditor, "", body)
	assertError(t, rec, http.StatusForbidden, syncer.CodeInvalidNonce)

	rec = fixture.do(http.MethodPost, "/posts", auth.RoleEditor, fixture.nonce(auth.RoleAuthor), body)
	assertError(t, rec, http.StatusForbidden, syncer.CodeInvalidNonce)
}

func TestTaxonomySyncRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	rec := fixture.do(http.MethodPost, "/taxonomy", auth.RoleEditor, fixture.nonce(auth.RoleEditor), `{"taxonomy":"category","source_term_id":1}`)
	data := assertError(t, rec, http.StatusBadRequest, syncer.CodeValidation)

	params, _ := data["params"].(map[string]any)
	if len(params) == 0 {
		t.Fatalf("expected field errors in params, got %#v", data)
	}
}

func TestTaxonomySyncRejectsUnknownObjects(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	body := `{"taxonomy":"post_tag","source_term_id":1,"source_lang":"en","target_term_id":99,"target_lang":"xx"}`
	rec := fixture.do(http.MethodPost, "/taxonomy", auth.RoleEditor, fixture.nonce(auth.RoleEditor), body)
	data := assertError(t, rec, http.StatusBadRequest, syncer.CodeValidation)

	params, _ := data["params"].(map[string]any)
	for _, field := range []string{"taxonomy", "target_term_id", "target_lang"} {
		if _, ok := params[field]; !ok {
			t.Fatalf("expected %s in params, got %#v", field, params)
		}
	}
	if _, ok := params["source_term_id"]; ok {
		t.Fatalf("did not expect source_term_id in params, got %#v", params)
	}
}

func TestTaxonomySyncLinksTerms(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	body := `{"taxonomy":"category","source_term_id":"1","source_lang":"en","target_term_id":2,"target_lang":"fr"}`
	rec := fixture.do(http.MethodPost, "/taxonomy", auth.RoleEditor, fixture.nonce(auth.RoleEditor), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	if envelope["success"] != true || envelope["message"] != taxonomySyncedMessage {
		t.Fatalf("unexpected success envelope: %#v", envelope)
	}
	data, _ := envelope["data"].(map[string]any)
	if data["taxonomy"] != "category" || data["source_lang"] != "en" || data["target_lang"] != "fr" {
		t.Fatalf("unexpected sync result: %#v", data)
	}
	if group, _ := data["group"].(string); !strings.HasPrefix(group, "pll_") {
		t.Fatalf("unexpected group name: %#v", data["group"])
	}

	rec = fixture.do(http.MethodGet, "/taxonomy/category/terms?lang=fr", auth.RoleEditor, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected terms status: got %d (%s)", rec.Code, rec.Body.String())
	}
	terms, _ := decodeEnvelope(t, rec)["data"].([]any)
	if len(terms) != 1 {
		t.Fatalf("expected one french term, got %#v", terms)
	}
	term, _ := terms[0].(map[string]any)
	translations, _ := term["translations"].(map[string]any)
	if translations["en"] != float64(1) || translations["fr"] != float64(2) {
		t.Fatalf("unexpected translations: %#v", translations)
	}

	rec = fixture.do(http.MethodPost, "/taxonomy", auth.RoleEditor, fixture.nonce(auth.RoleEditor), body)
	assertError(t, rec, http.StatusBadRequest, syncer.CodeAlreadyLinked)
}

func TestPostSyncLinksPosts(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	body := `{"source_post_id":10,"source_lang":"en","target_post_id":11,"target_lang":"de"}`
	rec := fixture.do(http.MethodPost, "/posts", auth.RoleAuthor, fixture.nonce(auth.RoleAuthor), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if envelope := decodeEnvelope(t, rec); envelope["message"] != postsSyncedMessage {
		t.Fatalf("unexpected message: %#v", envelope["message"])
	}
	if fixture.store.GroupCount(translation.ObjectPost) != 1 {
		t.Fatalf("expected one post group, got %d", fixture.store.GroupCount(translation.ObjectPost))
	}
}

func TestPostSyncRejectsSameLanguage(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	body := `{"source_post_id":10,"source_lang":"en","target_post_id":11,"target_lang":"en"}`
	rec := fixture.do(http.MethodPost, "/posts", auth.RoleEditor, fixture.nonce(auth.RoleEditor), body)
	data := assertError(t, rec, http.StatusBadRequest, syncer.CodeValidation)
	if reasons, _ := data["reasons"].([]any); len(reasons) == 0 {
		t.Fatalf("expected reasons, got %#v", data)
	}
}

func TestLanguagesRouteKeepsConfiguredOrder(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	rec := fixture.do(http.MethodGet, "/languages", auth.RoleEditor, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d (%s)", rec.Code, rec.Body.String())
	}

	items, _ := decodeEnvelope(t, rec)["data"].([]any)
	var slugs []string
	for _, item := range items {
		entry, _ := item.(map[string]any)
		if _, ok := entry["locale"]; ok {
			t.Fatalf("did not expect locale in language entry: %#v", entry)
		}
		slugs = append(slugs, entry["slug"].(string))
	}
	if got := strings.Join(slugs, ","); got != "en,fr,de" {
		t.Fatalf("unexpected language order: %s", got)
	}
}

func TestTaxonomyTermsRouteRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	rec := fixture.do(http.MethodGet, "/taxonomy/category/terms?lang=xx", auth.RoleEditor, "", "")
	data := assertError(t, rec, http.StatusBadRequest, syncer.CodeValidation)
	params, _ := data["params"].(map[string]any)
	if _, ok := params["lang"]; !ok {
		t.Fatalf("expected lang in params, got %#v", params)
	}
}

func TestTaxonomyTermsRouteListsTermsWithTranslations(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	if _, err := fixture.store.LinkGroup(context.Background(), translation.ObjectTerm, translation.Translations{"en": 1, "fr": 2}); err != nil {
		t.Fatalf("link terms: %v", err)
	}

	rec := fixture.do(http.MethodGet, "/taxonomy/category/terms", auth.RoleSubscriber, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d (%s)", rec.Code, rec.Body.String())
	}
	envelope := decodeEnvelope(t, rec)
	if envelope["success"] != true {
		t.Fatalf("unexpected envelope: %#v", envelope)
	}
	terms, _ := envelope["data"].([]any)
	if len(terms) != 2 {
		t.Fatalf("expected both category terms, got %#v", terms)
	}

	byID := map[float64]map[string]any{}
	for _, item := range terms {
		term, _ := item.(map[string]any)
		byID[term["id"].(float64)] = term
	}
	want := map[float64]string{1: "en", 2: "fr"}
	for id, lang := range want {
		term, ok := byID[id]
		if !ok {
			t.Fatalf("missing term %v in %#v", id, terms)
		}
		if term["language"] != lang {
			t.Fatalf("term %v: expected language %s, got %#v", id, lang, term["language"])
		}
		translations, _ := term["translations"].(map[string]any)
		if translations["en"] != float64(1) || translations["fr"] != float64(2) {
			t.Fatalf("term %v: unexpected translations %#v", id, translations)
		}
		for _, field := range []string{"name", "slug", "description", "count"} {
			if _, ok := term[field]; !ok {
				t.Fatalf("term %v: missing %s in %#v", id, field, term)
			}
		}
	}

	rec = fixture.do(http.MethodGet, "/taxonomy/category/terms?lang=en", auth.RoleSubscriber, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected filtered status: got %d (%s)", rec.Code, rec.Body.String())
	}
	filtered, _ := decodeEnvelope(t, rec)["data"].([]any)
	if len(filtered) != 1 {
		t.Fatalf("expected one english term, got %#v", filtered)
	}
	if term, _ := filtered[0].(map[string]any); term["id"] != float64(1) {
		t.Fatalf("expected term 1, got %#v", term)
	}
}

func TestTaxonomyTermsRouteRejectsUntranslatableTaxonomy(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	for _, taxonomy := range []string{"post_tag", "missing"} {
		rec := fixture.do(http.MethodGet, "/taxonomy/"+taxonomy+"/terms", auth.RoleEditor, "", "")
		data := assertError(t, rec, http.StatusBadRequest, syncer.CodeValidation)
		params, _ := data["params"].(map[string]any)
		if _, ok := params["taxonomy"]; !ok {
			t.Fatalf("%s: expected taxonomy in params, got %#v", taxonomy, params)
		}
	}
}

func TestPostSyncRejectsLanguagesEqualAfterTrimming(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	body := `{"source_post_id":10,"source_lang":"en ","target_post_id":11,"target_lang":"en"}`
	rec := fixture.do(http.MethodPost, "/posts", auth.RoleEditor, fixture.nonce(auth.RoleEditor), body)
	data := assertError(t, rec, http.StatusBadRequest, syncer.CodeValidation)
	params, _ := data["params"].(map[string]any)
	if _, ok := params["source_lang"]; !ok {
		t.Fatalf("expected source_lang in params, got %#v", params)
	}
	if fixture.store.GroupCount(translation.ObjectPost) != 0 {
		t.Fatalf("expected no post groups")
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	t.Parallel()

	fixture := newRouteFixture(t)
	rec := fixture.do(http.MethodGet, "/missing", "", "", "")
	assertError(t, rec, http.StatusNotFound, "rest_no_route")
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "client ip header wins",
			headers: map[string]string{"X-Client-IP": "8.8.8.8", "X-Forwarded-For": "1.1.1.1"},
			remote:  "10.0.0.1:1234",
			want:    "8.8.8.8",
		},
		{
			name:    "first public forwarded address",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.5, 192.168.1.1, 9.9.9.9"},
			remote:  "10.0.0.1:1234",
			want:    "9.9.9.9",
		},
		{
			name:    "reserved ranges are skipped",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 127.0.0.1"},
			remote:  "10.0.0.1:1234",
			want:    "10.0.0.1",
		},
		{
			name:   "missing remote address",
			remote: "",
			want:   "unknown",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			if got := clientIP(req); got != tc.want {
				t.Fatalf("clientIP mismatch: got %q want %q", got, tc.want)
			}
		})
	}
}
