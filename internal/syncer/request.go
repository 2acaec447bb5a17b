package syncer

import (
	"context"
	"strings"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

// Request is one of TaxonomyRequest or PostRequest.
type Request interface {
	Kind() translation.Kind
	SourceID() int64
	TargetID() int64
	Langs() (source, target string)
	sealed()
}

type TaxonomyRequest struct {
	Taxonomy     string `json:"taxonomy"`
	SourceTermID int64  `json:"source_term_id"`
	SourceLang   string `json:"source_lang"`
	TargetTermID int64  `json:"target_term_id"`
	TargetLang   string `json:"target_lang"`
}

func (TaxonomyRequest) Kind() translation.Kind { return translation.KindTaxonomy }
func (r TaxonomyRequest) SourceID() int64 { return r.SourceTermID }
func (r TaxonomyRequest) TargetID() int64 { return r.TargetTermID }
func (r TaxonomyRequest) Langs() (string, string) {
	return r.SourceLang, r.TargetLang
}
func (TaxonomyRequest) sealed() {}

type PostRequest struct {
	SourcePostID int64  `json:"source_post_id"`
	SourceLang   string `json:"source_lang"`
	TargetPostID int64  `json:"target_post_id"`
	TargetLang   string `json:"target_lang"`
}

func (PostRequest) Kind() translation.Kind { return translation.KindPosts }
func (r PostRequest) SourceID() int64 { return r.SourcePostID }
func (r PostRequest) TargetID() int64 { return r.TargetPostID }
func (r PostRequest) Langs() (string, string) {
	return r.SourceLang, r.TargetLang
}
func (PostRequest) sealed() {}

// Result is the payload returned by a successful sync.
type Result struct {
	SourceID   int64  `json:"source_id"`
	TargetID   int64  `json:"target_id"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Taxonomy   string `json:"taxonomy,omitempty"`
	Group      string `json:"group"`
	SyncDate   string `json:"sync_date"`
}

// Actor identifies who triggered a sync and from where.
type Actor struct {
	UserID   int64
	Username string
	ClientIP string
}

type actorKey struct{}

// WithActor attaches actor to ctx for observers.
func WithActor(ctx context.Context, actor Actor) context.Context {
	actor.Username = strings.TrimSpace(actor.Username)
	actor.ClientIP = strings.TrimSpace(actor.ClientIP)
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
