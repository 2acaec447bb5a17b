package syncer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

const handlerSeed = `
taxonomies: [category, post_tag]
translatable_taxonomies: [category, post_tag]
languages:
  - {slug: en, name: English, locale: en_US, flag: us, order: 0}
  - {slug: fr, name: Français, locale: fr_FR, flag: fr, order: 1}
  - {slug: de, name: Deutsch, locale: de_DE, flag: de, order: 2}
terms:
  - {id: 1, name: News, slug: news, taxonomy: category, language: en}
  - {id: 2, name: Actualités, slug: actualites, taxonomy: category}
  - {id: 3, name: Nachrichten, slug: nachrichten, taxonomy: category}
  - {id: 4, name: Go, slug: go, taxonomy: post_tag}
posts:
  - {id: 10, title: Hello, type: post, status: publish}
  - {id: 11, title: Bonjour, type: post, status: publish}
  - {id: 12, title: Hallo, type: post, status: publish}
`

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type recordingObserver struct {
	events []string
	failed []*Error
	saved  []*translation.Group
}

func (o *recordingObserver) BeforeSync(_ context.Context, req Request) {
	o.events = append(o.events, "before:"+string(req.Kind()))
}

func (o *recordingObserver) TranslationsSaved(_ context.Context, _ Request, group *translation.Group) {
	o.events = append(o.events, "saved")
	o.saved = append(o.saved, group)
}

func (o *recordingObserver) AfterSync(_ context.Context, req Request, _ *Result) {
	o.events = append(o.events, "after:"+string(req.Kind()))
}

func (o *recordingObserver) SyncFailed(_ context.Context, _ Request, err *Error) {
	o.events = append(o.events, "failed:"+err.Code)
	o.failed = append(o.failed, err)
}

type langSwapFilter struct{}

func (langSwapFilter) FilterRequest(_ context.Context, req Request) Request {
	post, ok := req.(PostRequest)
	if !ok {
		return req
	}
	post.TargetLang = "de"
	return post
}

func (langSwapFilter) FilterResult(_ context.Context, _ Request, result *Result) *Result {
	out := *result
	out.Group = "rewritten-" + out.Group
	return &out
}

type kindChangingFilter struct{}

func (kindChangingFilter) FilterRequest(context.Context, Request) Request {
	return TaxonomyRequest{Taxonomy: "category", SourceTermID: 1, SourceLang: "en", TargetTermID: 2, TargetLang: "fr"}
}

func (kindChangingFilter) FilterResult(_ context.Context, _ Request, result *Result) *Result {
	return nil
}

type failingStore struct {
	*translation.MemoryStore
	linkErr error
}

func (s *failingStore) LinkGroup(context.Context, translation.ObjectType, translation.Translations) (*translation.Group, error) {
	return nil, s.linkErr
}

func newTestHandler(t *testing.T, opts Options) (*Handler, *translation.MemoryStore) {
	t.Helper()
	store, err := translation.LoadSeed([]byte(handlerSeed))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	opts.Now = func() time.Time { return fixedNow }
	return NewHandler(store, zerolog.Nop(), opts), store
}

func TestSyncTaxonomyTermsLinksBothTerms(t *testing.T) {
	t.Parallel()

	observer := &recordingObserver{}
	handler, store := newTestHandler(t, Options{Observers: []Observer{observer}})
	ctx := context.Background()

	result, err := handler.SyncTaxonomyTerms(ctx, TaxonomyRequest{
		Taxonomy:     "category",
		SourceTermID: 1,
		SourceLang:   "en",
		TargetTermID: 2,
		TargetLang:   "fr",
	})
	if err != nil {
		t.Fatalf("SyncTaxonomyTerms returned error: %v", err)
	}
	if result.SourceID != 1 || result.TargetID != 2 || result.Taxonomy != "category" {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.SyncDate != "2026-03-04 05:06:07" {
		t.Fatalf("unexpected sync date: %q", result.SyncDate)
	}
	if !strings.HasPrefix(result.Group, "pll_") {
		t.Fatalf("unexpected group name: %q", result.Group)
	}

	for _, id := range []int64{1, 2} {
		set, err := store.Translations(ctx, translation.ObjectTerm, id)
		if err != nil {
			t.Fatalf("Translations(%d) returned error: %v", id, err)
		}
		if set["en"] != 1 || set["fr"] != 2 {
			t.Fatalf("term %d translations missing link: %#v", id, set)
		}
	}
	lang, _ := store.ObjectLanguage(ctx, translation.ObjectTerm, 2)
	if lang != "fr" {
		t.Fatalf("expected target term language fr, got %q", lang)
	}

	want := "before:taxonomy,saved,after:taxonomy"
	if got := strings.Join(observer.events, ","); got != want {
		t.Fatalf("unexpected observer events: got %s want %s", got, want)
	}
}

func TestSyncTaxonomyTermsRejectsSameTerm(t *testing.T) {
	t.Parallel()

	observer := &recordingObserver{}
	handler, _ := newTestHandler(t, Options{Observers: []Observer{observer}})

	_, err := handler.SyncTaxonomyTerms(context.Background(), TaxonomyRequest{
		Taxonomy:     "category",
		SourceTermID: 3,
		SourceLang:   "en",
		TargetTermID: 3,
		TargetLang:   "fr",
	})
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(serr.Message, "Source and target terms must be different.") {
		t.Fatalf("expected distinctness reason, got %q", serr.Message)
	}
	if serr.HTTPStatus() != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", serr.HTTPStatus())
	}
	if len(observer.failed) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(observer.failed))
	}
}

func TestSyncTaxonomyTermsReportsRequiredFields(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t, Options{})
	_, err := handler.SyncTaxonomyTerms(context.Background(), TaxonomyRequest{Taxonomy: "category", SourceTermID: 1})

	serr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected reported error, got %v", err)
	}
	want := `Invalid parameters: Field "source_lang" is required., Field "target_term_id" is required., Field "target_lang" is required.`
	if serr.Message != want {
		t.Fatalf("unexpected message:\n got %s\nwant %s", serr.Message, want)
	}
	if len(serr.Reasons) != 3 {
		t.Fatalf("expected 3 reasons, got %#v", serr.Reasons)
	}
}

func TestSyncTaxonomyTermsRejectsTaxonomyMismatch(t *testing.T) {
	t.Parallel()

	handler, store := newTestHandler(t, Options{})
	ctx := context.Background()

	_, err := handler.SyncTaxonomyTerms(ctx, TaxonomyRequest{
		Taxonomy:     "category",
		SourceTermID: 1,
		SourceLang:   "en",
		TargetTermID: 4,
		TargetLang:   "fr",
	})
	serr, ok := AsError(err)
	if !ok || serr.Code != CodeTaxonomyMismatch {
		t.Fatalf("expected taxonomy_mismatch, got %v", err)
	}

	_, err = handler.SyncTaxonomyTerms(ctx, TaxonomyRequest{
		Taxonomy:     "post_tag",
		SourceTermID: 1,
		SourceLang:   "en",
		TargetTermID: 2,
		TargetLang:   "fr",
	})
	serr, ok = AsError(err)
	if !ok || serr.Code != CodeTaxonomyMismatch {
		t.Fatalf("expected taxonomy_mismatch for requested taxonomy, got %v", err)
	}
	if store.GroupCount(translation.ObjectTerm) != 0 {
		t.Fatalf("expected no term groups, got %d", store.GroupCount(translation.ObjectTerm))
	}
}

func TestSyncPostsMissingPostCreatesNoGroup(t *testing.T) {
	t.Parallel()

	handler, store := newTestHandler(t, Options{})
	_, err := handler.SyncPosts(context.Background(), PostRequest{
		SourcePostID: 10,
		SourceLang:   "en",
		TargetPostID: 999,
		TargetLang:   "fr",
	})
	serr, ok := AsError(err)
	if !ok || serr.Kind != KindNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
	if serr.Message != "One or both posts do not exist." {
		t.Fatalf("unexpected message: %q", serr.Message)
	}
	if store.GroupCount(translation.ObjectPost) != 0 {
		t.Fatalf("expected no post groups, got %d", store.GroupCount(translation.ObjectPost))
	}
	if lang, _ := store.ObjectLanguage(context.Background(), translation.ObjectPost, 10); lang != "" {
		t.Fatalf("expected source post language untouched, got %q", lang)
	}
}

func TestSyncPostsTwiceReturnsConflictBothTimes(t *testing.T) {
	t.Parallel()

	handler, store := newTestHandler(t, Options{})
	ctx := context.Background()
	req := PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: 11, TargetLang: "fr"}

	if _, err := handler.SyncPosts(ctx, req); err != nil {
		t.Fatalf("first SyncPosts returned error: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		_, err := handler.SyncPosts(ctx, req)
		serr, ok := AsError(err)
		if !ok || serr.Kind != KindConflict || serr.Code != CodeAlreadyLinked {
			t.Fatalf("attempt %d: expected already_linked conflict, got %v", attempt, err)
		}
	}
	if store.GroupCount(translation.ObjectPost) != 1 {
		t.Fatalf("expected exactly one post group, got %d", store.GroupCount(translation.ObjectPost))
	}
}

func TestSyncPostsAppliesFilters(t *testing.T) {
	t.Parallel()

	handler, store := newTestHandler(t, Options{Filters: []Filter{langSwapFilter{}}})
	ctx := context.Background()

	result, err := handler.SyncPosts(ctx, PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: 12, TargetLang: "fr"})
	if err != nil {
		t.Fatalf("SyncPosts returned error: %v", err)
	}
	if result.TargetLang != "de" {
		t.Fatalf("expected filtered target language, got %q", result.TargetLang)
	}
	if !strings.HasPrefix(result.Group, "rewritten-pll_") {
		t.Fatalf("expected filtered result group, got %q", result.Group)
	}
	set, _ := store.Translations(ctx, translation.ObjectPost, 12)
	if set["de"] != 12 {
		t.Fatalf("expected post 12 linked as de, got %#v", set)
	}
}

func TestFilterChangingSyncTypeIsIgnored(t *testing.T) {
	t.Parallel()

	handler, store := newTestHandler(t, Options{Filters: []Filter{kindChangingFilter{}}})
	result, err := handler.SyncPosts(context.Background(), PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: 11, TargetLang: "fr"})
	if err != nil {
		t.Fatalf("SyncPosts returned error: %v", err)
	}
	if result.SourceID != 10 || result.Taxonomy != "" {
		t.Fatalf("expected original post request to be used, got %#v", result)
	}
	if store.GroupCount(translation.ObjectTerm) != 0 {
		t.Fatalf("did not expect term groups")
	}
}

func TestSyncPostsDelegateFailureStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		kind   ErrorKind
	}{
		{name: "unknown language", err: translation.ErrUnknownLanguage, status: http.StatusBadRequest, kind: KindDelegate},
		{name: "storage failure", err: errors.New("connection reset"), status: http.StatusInternalServerError, kind: KindDelegate},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			memory, err := translation.LoadSeed([]byte(handlerSeed))
			if err != nil {
				t.Fatalf("load seed: %v", err)
			}
			handler := NewHandler(&failingStore{MemoryStore: memory, linkErr: tc.err}, zerolog.Nop(), Options{})

			_, err = handler.SyncPosts(context.Background(), PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: 11, TargetLang: "fr"})
			serr, ok := AsError(err)
			if !ok {
				t.Fatalf("expected reported error, got %v", err)
			}
			if serr.Kind != tc.kind || serr.HTTPStatus() != tc.status {
				t.Fatalf("unexpected error: kind=%s status=%d", serr.Kind, serr.HTTPStatus())
			}
			if serr.Message != tc.err.Error() {
				t.Fatalf("expected verbatim store message, got %q", serr.Message)
			}
		})
	}
}

func TestLanguagesPreservesStoreOrder(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t, Options{})
	languages, err := handler.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages returned error: %v", err)
	}
	if got := strings.Join(translation.LanguageSlugs(languages), ","); got != "en,fr,de" {
		t.Fatalf("unexpected languages: %s", got)
	}
}

func TestSyncRejectsPairsEqualAfterSanitizing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		sync   func(*Handler) error
		reason string
	}{
		{
			name: "negative post id",
			sync: func(h *Handler) error {
				_, err := h.SyncPosts(context.Background(), PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: -10, TargetLang: "fr"})
				return err
			},
			reason: "Source and target posts must be different.",
		},
		{
			name: "padded post language",
			sync: func(h *Handler) error {
				_, err := h.SyncPosts(context.Background(), PostRequest{SourcePostID: 10, SourceLang: "en ", TargetPostID: 11, TargetLang: "en"})
				return err
			},
			reason: "Source and target languages must be different.",
		},
		{
			name: "negative term id",
			sync: func(h *Handler) error {
				_, err := h.SyncTaxonomyTerms(context.Background(), TaxonomyRequest{Taxonomy: "category", SourceTermID: -2, SourceLang: "en", TargetTermID: 2, TargetLang: "fr"})
				return err
			},
			reason: "Source and target terms must be different.",
		},
		{
			name: "marked-up term language",
			sync: func(h *Handler) error {
				_, err := h.SyncTaxonomyTerms(context.Background(), TaxonomyRequest{Taxonomy: "category", SourceTermID: 2, SourceLang: "<b>fr</b>", TargetTermID: 3, TargetLang: "fr"})
				return err
			},
			reason: "Source and target languages must be different.",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler, store := newTestHandler(t, Options{})
			err := tc.sync(handler)
			serr, ok := AsError(err)
			if !ok || serr.Kind != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(serr.Message, tc.reason) {
				t.Fatalf("expected reason %q, got %q", tc.reason, serr.Message)
			}
			if store.GroupCount(translation.ObjectPost) != 0 {
				t.Fatalf("expected no post groups")
			}
			if store.GroupCount(translation.ObjectTerm) != 0 {
				t.Fatalf("expected no term groups")
			}
		})
	}
}

type listingRewriter struct {
	queries []TermsQuery
}

func (f *listingRewriter) FilterLanguages(_ context.Context, languages []translation.Language) []translation.Language {
	out := make([]translation.Language, 0, len(languages))
	for _, lang := range languages {
		if lang.Slug != "de" {
			out = append(out, lang)
		}
	}
	return out
}

func (f *listingRewriter) FilterTermsQuery(_ context.Context, query TermsQuery) TermsQuery {
	f.queries = append(f.queries, query)
	query.Lang = ""
	return query
}

func (f *listingRewriter) FilterTerms(_ context.Context, _ TermsQuery, terms []translation.TermListing) []translation.TermListing {
	for i := range terms {
		terms[i].Name = strings.ToUpper(terms[i].Name)
	}
	return terms
}

func TestListingFiltersRewriteLanguagesAndTerms(t *testing.T) {
	t.Parallel()

	filter := &listingRewriter{}
	handler, _ := newTestHandler(t, Options{ListingFilters: []ListingFilter{filter}})
	ctx := context.Background()

	languages, err := handler.Languages(ctx)
	if err != nil {
		t.Fatalf("Languages returned error: %v", err)
	}
	if got := strings.Join(translation.LanguageSlugs(languages), ","); got != "en,fr" {
		t.Fatalf("unexpected filtered languages: %s", got)
	}

	terms, err := handler.TaxonomyTerms(ctx, " category ", "en")
	if err != nil {
		t.Fatalf("TaxonomyTerms returned error: %v", err)
	}
	if len(filter.queries) != 1 || filter.queries[0] != (TermsQuery{Taxonomy: "category", Lang: "en"}) {
		t.Fatalf("expected sanitized query passed to filter, got %#v", filter.queries)
	}
	if len(terms) != 3 {
		t.Fatalf("expected the language restriction to be lifted, got %d terms", len(terms))
	}
	for _, term := range terms {
		if term.Name != strings.ToUpper(term.Name) {
			t.Fatalf("expected rewritten term name, got %q", term.Name)
		}
	}
}

type logFieldFilter struct {
	seen []map[string]any
}

func (f *logFieldFilter) FilterLogData(_ context.Context, _ Request, data map[string]any) map[string]any {
	f.seen = append(f.seen, data)
	data["tenant"] = "docs"
	return data
}

func TestLogFiltersSeeEveryOutcome(t *testing.T) {
	t.Parallel()

	filter := &logFieldFilter{}
	handler, _ := newTestHandler(t, Options{LogFilters: []LogFilter{filter}})
	ctx := context.Background()

	if _, err := handler.SyncPosts(ctx, PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: 11, TargetLang: "fr"}); err != nil {
		t.Fatalf("SyncPosts returned error: %v", err)
	}
	if _, err := handler.SyncPosts(ctx, PostRequest{SourcePostID: 10, SourceLang: "en", TargetPostID: 11, TargetLang: "fr"}); err == nil {
		t.Fatalf("expected second sync to conflict")
	}

	if len(filter.seen) != 2 {
		t.Fatalf("expected two log lines, got %d", len(filter.seen))
	}
	if filter.seen[0]["success"] != true || filter.seen[0]["group"] == "" {
		t.Fatalf("unexpected success fields: %#v", filter.seen[0])
	}
	if filter.seen[1]["success"] != false || filter.seen[1]["code"] != CodeAlreadyLinked {
		t.Fatalf("unexpected failure fields: %#v", filter.seen[1])
	}
	if filter.seen[1]["sync_type"] != string(translation.KindPosts) {
		t.Fatalf("expected sync_type field, got %#v", filter.seen[1])
	}
}
