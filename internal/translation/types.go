package translation

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned when a term, post, or taxonomy does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnknownLanguage is returned when a language slug is not configured.
	ErrUnknownLanguage = errors.New("unknown language")
)

// Kind identifies one of the two sync operations.
type Kind string

const (
	KindTaxonomy Kind = "taxonomy"
	KindPosts    Kind = "posts"
)

// ObjectType is the host object family a translation group clusters.
type ObjectType string

const (
	ObjectTerm ObjectType = "term"
	ObjectPost ObjectType = "post"
)

// GroupTaxonomy returns the indirection taxonomy that stores groups of t.
func (t ObjectType) GroupTaxonomy() string {
	if t == ObjectTerm {
		return "term_translations"
	}
	return "post_translations"
}

// LanguageTaxonomy returns the taxonomy that tags objects of t with a language.
func (t ObjectType) LanguageTaxonomy() string {
	if t == ObjectTerm {
		return "term_language"
	}
	return "language"
}

// Language is one configured language of the host.
type Language struct {
	Slug   string `json:"slug" yaml:"slug"`
	Name   string `json:"name" yaml:"name"`
	Locale string `json:"locale,omitempty" yaml:"locale"`
	Flag   string `json:"flag" yaml:"flag"`
	Order  int    `json:"-" yaml:"order"`
}

type Term struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Slug        string `json:"slug" yaml:"slug"`
	Taxonomy    string `json:"taxonomy" yaml:"taxonomy"`
	Description string `json:"description" yaml:"description"`
	Count       int64  `json:"count" yaml:"count"`
}

type Post struct {
	ID     int64  `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Type   string `json:"type" yaml:"type"`
	Status string `json:"status" yaml:"status"`
}

// Translations maps a language slug to the object translated into it.
type Translations map[string]int64

// IDs returns the member IDs in ascending order.
func (t Translations) IDs() []int64 {
	ids := make([]int64, 0, len(t))
	for _, id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Intersects reports whether t and other share at least one object ID.
func (t Translations) Intersects(other Translations) bool {
	if len(t) == 0 || len(other) == 0 {
		return false
	}
	seen := make(map[int64]struct{}, len(t))
	for _, id := range t {
		seen[id] = struct{}{}
	}
	for _, id := range other {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}

// Clone returns a copy of t that is safe to mutate.
func (t Translations) Clone() Translations {
	out := make(Translations, len(t))
	for lang, id := range t {
		out[lang] = id
	}
	return out
}

// Group is a freshly allocated translation group.
type Group struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Members Translations `json:"members"`
}

// TermListing is one row of the terms endpoint.
type TermListing struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Slug         string       `json:"slug"`
	Description  string       `json:"description"`
	Count        int64        `json:"count"`
	Language     string       `json:"language"`
	Translations Translations `json:"translations"`
}

// ContentStore resolves host objects and taxonomy configuration.
type ContentStore interface {
	TaxonomyExists(ctx context.Context, taxonomy string) (bool, error)
	TranslatableTaxonomies(ctx context.Context) ([]string, error)
	GetTerm(ctx context.Context, termID int64) (*Term, error)
	GetPost(ctx context.Context, postID int64) (*Post, error)
	ListTerms(ctx context.Context, taxonomy, lang string) ([]TermListing, error)
}

// TranslationStore reads and writes the host's language tags and groups.
type TranslationStore interface {
	Languages(ctx context.Context) ([]Language, error)
	Translations(ctx context.Context, objectType ObjectType, objectID int64) (Translations, error)
	ObjectLanguage(ctx context.Context, objectType ObjectType, objectID int64) (string, error)
	SetLanguage(ctx context.Context, objectType ObjectType, objectID int64, lang string) error
	// LinkGroup tags every member with the language it is keyed by and
	// moves them all into a newly allocated group. It either applies fully
	// or leaves the store unchanged.
	LinkGroup(ctx context.Context, objectType ObjectType, members Translations) (*Group, error)
}

// Store is the full host surface this service needs.
type Store interface {
	ContentStore
	TranslationStore
}

// LanguageSlugs returns the slugs of languages in order.
func LanguageSlugs(languages []Language) []string {
	slugs := make([]string, 0, len(languages))
	for _, lang := range languages {
		slugs = append(slugs, lang.Slug)
	}
	return slugs
}
