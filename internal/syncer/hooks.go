package syncer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

// Observer is notified at each stage of a sync. Observers cannot change the
// outcome; they run synchronously in registration order.
type Observer interface {
	BeforeSync(ctx context.Context, req Request)
	TranslationsSaved(ctx context.Context, req Request, group *translation.Group)
	AfterSync(ctx context.Context, req Request, result *Result)
	SyncFailed(ctx context.Context, req Request, err *Error)
}

// Filter may rewrite the request before validation and the result before it
// is returned. A filter that returns a different request variant is ignored.
type Filter interface {
	FilterRequest(ctx context.Context, req Request) Request
	FilterResult(ctx context.Context, req Request, result *Result) *Result
}

// TermsQuery selects the terms listed by Handler.TaxonomyTerms.
type TermsQuery struct {
	Taxonomy string
	Lang     string
}

// ListingFilter may rewrite the language and term listings. FilterTermsQuery
// runs before the store is queried, FilterTerms on its rows.
type ListingFilter interface {
	FilterLanguages(ctx context.Context, languages []translation.Language) []translation.Language
	FilterTermsQuery(ctx context.Context, query TermsQuery) TermsQuery
	FilterTerms(ctx context.Context, query TermsQuery, terms []translation.TermListing) []translation.TermListing
}

// LogFilter may add, replace or drop fields of the sync outcome log line.
type LogFilter interface {
	FilterLogData(ctx context.Context, req Request, data map[string]any) map[string]any
}

// NopObserver implements Observer with no-ops for embedding.
type NopObserver struct{}

func (NopObserver) BeforeSync(context.Context, Request) {}
func (NopObserver) TranslationsSaved(context.Context, Request, *translation.Group) {}
func (NopObserver) AfterSync(context.Context, Request, *Result) {}
func (NopObserver) SyncFailed(context.Context, Request, *Error) {}

// LogObserver traces sync lifecycle events at debug level.
type LogObserver struct {
	logger zerolog.Logger
}

func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With().Str("component", "sync_hooks").Logger()}
}

func (o *LogObserver) BeforeSync(ctx context.Context, req Request) {
	event := o.logger.Debug().Str("sync_type", string(req.Kind()))
	addActor(ctx, event)
	event.Int64("source_id", req.SourceID()).
		Int64("target_id", req.TargetID()).
		Msg("sync started")
}

func (o *LogObserver) TranslationsSaved(_ context.Context, req Request, group *translation.Group) {
	if group == nil {
		return
	}
	o.logger.Debug().
		Str("sync_type", string(req.Kind())).
		Str("group", group.Name).
		Interface("translations", group.Members).
		Msg("translations saved")
}

func (o *LogObserver) AfterSync(_ context.Context, req Request, result *Result) {
	if result == nil {
		return
	}
	o.logger.Debug().
		Str("sync_type", string(req.Kind())).
		Str("group", result.Group).
		Str("sync_date", result.SyncDate).
		Msg("sync finished")
}

func (o *LogObserver) SyncFailed(ctx context.Context, req Request, err *Error) {
	if err == nil {
		return
	}
	event := o.logger.Debug().Str("sync_type", string(req.Kind()))
	addActor(ctx, event)
	event.Str("code", err.Code).
		Str("kind", string(err.Kind)).
		Str("reason", err.Message).
		Msg("sync failed")
}

func addActor(ctx context.Context, event *zerolog.Event) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return
	}
	event.Int64("user_id", actor.UserID).Str("client_ip", actor.ClientIP)
}
