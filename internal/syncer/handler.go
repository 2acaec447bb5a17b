package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/globaltime"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

const (
	failTaxonomyPrefix = "Failed to sync taxonomy terms"
	failPostsPrefix    = "Failed to sync posts"
)

type Options struct {
	Observers      []Observer
	Filters        []Filter
	ListingFilters []ListingFilter
	LogFilters     []LogFilter
	Now            func() time.Time
}

// Handler links two existing objects as translations of each other.
type Handler struct {
	store     translation.Store
	validator *Validator
	observers []Observer
	filters   []Filter
	listings  []ListingFilter
	logs      []LogFilter
	logger    zerolog.Logger
	now       func() time.Time
}

func NewHandler(store translation.Store, logger zerolog.Logger, opts Options) *Handler {
	now := opts.Now
	if now == nil {
		now = globaltime.UTC
	}
	return &Handler{
		store:     store,
		validator: NewValidator(store),
		observers: append([]Observer(nil), opts.Observers...),
		filters:   append([]Filter(nil), opts.Filters...),
		listings:  append([]ListingFilter(nil), opts.ListingFilters...),
		logs:      append([]LogFilter(nil), opts.LogFilters...),
		logger:    logger.With().Str("component", "sync").Logger(),
		now:       now,
	}
}

func (h *Handler) Validator() *Validator {
	return h.validator
}

// SyncTaxonomyTerms links two terms of one translatable taxonomy.
func (h *Handler) SyncTaxonomyTerms(ctx context.Context, req TaxonomyRequest) (*Result, error) {
	h.notifyBefore(ctx, req)
	if filtered, ok := h.filterRequest(ctx, req).(TaxonomyRequest); ok {
		req = filtered
	}

	req = SanitizeTaxonomyRequest(req)
	if reasons := ValidateTaxonomyRequest(req); len(reasons) > 0 {
		return nil, h.failed(ctx, req, ValidationError(reasons))
	}

	result, err := h.linkTerms(ctx, req)
	if err != nil {
		return nil, h.failed(ctx, req, h.classify(err, failTaxonomyPrefix))
	}
	return h.finish(ctx, req, result), nil
}

// SyncPosts links two posts.
func (h *Handler) SyncPosts(ctx context.Context, req PostRequest) (*Result, error) {
	h.notifyBefore(ctx, req)
	if filtered, ok := h.filterRequest(ctx, req).(PostRequest); ok {
		req = filtered
	}

	req = SanitizePostRequest(req)
	if reasons := ValidatePostRequest(req); len(reasons) > 0 {
		return nil, h.failed(ctx, req, ValidationError(reasons))
	}

	result, err := h.linkPosts(ctx, req)
	if err != nil {
		return nil, h.failed(ctx, req, h.classify(err, failPostsPrefix))
	}
	return h.finish(ctx, req, result), nil
}

func (h *Handler) Languages(ctx context.Context) ([]translation.Language, error) {
	languages, err := h.store.Languages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load languages: %w", err)
	}
	for _, filter := range h.listings {
		languages = filter.FilterLanguages(ctx, languages)
	}
	return languages, nil
}

// TaxonomyTerms lists the terms of taxonomy, restricted to lang when set.
func (h *Handler) TaxonomyTerms(ctx context.Context, taxonomy, lang string) ([]translation.TermListing, error) {
	query := TermsQuery{Taxonomy: SanitizeText(taxonomy), Lang: SanitizeText(lang)}
	for _, filter := range h.listings {
		query = filter.FilterTermsQuery(ctx, query)
	}

	terms, err := h.store.ListTerms(ctx, query.Taxonomy, query.Lang)
	if err != nil {
		return nil, fmt.Errorf("list %s terms: %w", query.Taxonomy, err)
	}
	for _, filter := range h.listings {
		terms = filter.FilterTerms(ctx, query, terms)
	}
	if terms == nil {
		terms = []translation.TermListing{}
	}
	return terms, nil
}

func (h *Handler) linkTerms(ctx context.Context, req TaxonomyRequest) (*Result, error) {
	source, err := h.store.GetTerm(ctx, req.SourceTermID)
	if err != nil {
		return nil, missingObject(err, CodeTermNotFound, "One or both terms do not exist.", "source term", req.SourceTermID)
	}
	target, err := h.store.GetTerm(ctx, req.TargetTermID)
	if err != nil {
		return nil, missingObject(err, CodeTermNotFound, "One or both terms do not exist.", "target term", req.TargetTermID)
	}

	if source.Taxonomy != target.Taxonomy {
		return nil, taxonomyMismatch("Terms must belong to the same taxonomy.")
	}
	if source.Taxonomy != req.Taxonomy {
		return nil, taxonomyMismatch(fmt.Sprintf("Terms must belong to taxonomy %q.", req.Taxonomy))
	}

	group, err := h.link(ctx, req, translation.ObjectTerm, "Terms are already linked.")
	if err != nil {
		return nil, err
	}

	return &Result{
		SourceID:   req.SourceTermID,
		TargetID:   req.TargetTermID,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Taxonomy:   source.Taxonomy,
		Group:      group.Name,
	}, nil
}

func (h *Handler) linkPosts(ctx context.Context, req PostRequest) (*Result, error) {
	if _, err := h.store.GetPost(ctx, req.SourcePostID); err != nil {
		return nil, missingObject(err, CodePostNotFound, "One or both posts do not exist.", "source post", req.SourcePostID)
	}
	if _, err := h.store.GetPost(ctx, req.TargetPostID); err != nil {
		return nil, missingObject(err, CodePostNotFound, "One or both posts do not exist.", "target post", req.TargetPostID)
	}

	group, err := h.link(ctx, req, translation.ObjectPost, "Posts are already linked.")
	if err != nil {
		return nil, err
	}

	return &Result{
		SourceID:   req.SourcePostID,
		TargetID:   req.TargetPostID,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Group:      group.Name,
	}, nil
}

// link rejects pairs whose translation sets already share an object, then
// hands both members to the store in a single LinkGroup call.
func (h *Handler) link(ctx context.Context, req Request, objectType translation.ObjectType, linkedMessage string) (*translation.Group, error) {
	sourceSet, err := h.store.Translations(ctx, objectType, req.SourceID())
	if err != nil {
		return nil, fmt.Errorf("load %s %d translations: %w", objectType, req.SourceID(), err)
	}
	targetSet, err := h.store.Translations(ctx, objectType, req.TargetID())
	if err != nil {
		return nil, fmt.Errorf("load %s %d translations: %w", objectType, req.TargetID(), err)
	}
	if sourceSet.Intersects(targetSet) {
		return nil, ConflictError(CodeAlreadyLinked, linkedMessage)
	}

	sourceLang, targetLang := req.Langs()
	members := translation.Translations{
		sourceLang: req.SourceID(),
		targetLang: req.TargetID(),
	}
	group, err := h.store.LinkGroup(ctx, objectType, members)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, translation.ErrUnknownLanguage) || errors.Is(err, translation.ErrNotFound) {
			status = http.StatusBadRequest
		}
		return nil, DelegateError(status, err)
	}

	h.notifySaved(ctx, req, group)
	return group, nil
}

func (h *Handler) finish(ctx context.Context, req Request, result *Result) *Result {
	result.SyncDate = h.now().Format(globaltime.SyncDateLayout)
	for _, filter := range h.filters {
		if next := filter.FilterResult(ctx, req, result); next != nil {
			result = next
		}
	}

	h.logOutcome(ctx, req, h.logger.Info(), map[string]any{
		"success":     true,
		"source_id":   result.SourceID,
		"target_id":   result.TargetID,
		"source_lang": result.SourceLang,
		"target_lang": result.TargetLang,
		"group":       result.Group,
	}, "sync succeeded")

	for _, observer := range h.observers {
		observer.AfterSync(ctx, req, result)
	}
	return result
}

// classify turns a pipeline error into a reported Error. Anything not
// already reported becomes an UnexpectedError carrying err's message.
func (h *Handler) classify(err error, prefix string) *Error {
	if reported, ok := AsError(err); ok {
		return reported
	}
	return UnexpectedError(prefix, err)
}

func (h *Handler) failed(ctx context.Context, req Request, serr *Error) *Error {
	var event *zerolog.Event
	if serr.HTTPStatus() >= http.StatusInternalServerError {
		event = h.logger.Error().Err(serr.Err)
	} else {
		event = h.logger.Warn()
	}
	h.logOutcome(ctx, req, event, map[string]any{
		"success":   false,
		"source_id": req.SourceID(),
		"target_id": req.TargetID(),
		"code":      serr.Code,
		"error":     serr.Message,
	}, "sync failed")

	for _, observer := range h.observers {
		observer.SyncFailed(ctx, req, serr)
	}
	return serr
}

// logOutcome writes one sync outcome line after the log filters ran over
// its fields. A filter returning nil drops the line.
func (h *Handler) logOutcome(ctx context.Context, req Request, event *zerolog.Event, data map[string]any, msg string) {
	data["sync_type"] = string(req.Kind())
	for _, filter := range h.logs {
		if data = filter.FilterLogData(ctx, req, data); data == nil {
			event.Discard()
			return
		}
	}
	addActor(ctx, event)
	event.Fields(data).Msg(msg)
}

func (h *Handler) filterRequest(ctx context.Context, req Request) Request {
	current := req
	for _, filter := range h.filters {
		next := filter.FilterRequest(ctx, current)
		switch next.(type) {
		case TaxonomyRequest, PostRequest:
		default:
			h.logger.Warn().Str("sync_type", string(req.Kind())).Msg("request filter returned unsupported value; ignoring")
			continue
		}
		if next.Kind() != current.Kind() {
			h.logger.Warn().Str("sync_type", string(req.Kind())).Msg("request filter changed sync type; ignoring")
			continue
		}
		current = next
	}
	return current
}

func (h *Handler) notifyBefore(ctx context.Context, req Request) {
	for _, observer := range h.observers {
		observer.BeforeSync(ctx, req)
	}
}

func (h *Handler) notifySaved(ctx context.Context, req Request, group *translation.Group) {
	for _, observer := range h.observers {
		observer.TranslationsSaved(ctx, req, group)
	}
}

func missingObject(err error, code, message, what string, id int64) error {
	if errors.Is(err, translation.ErrNotFound) {
		return NotFoundError(code, message, err)
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}

func taxonomyMismatch(message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeTaxonomyMismatch,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}
