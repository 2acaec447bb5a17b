package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

const polylangOptionName = "polylang"

// internalTaxonomies back languages and groups and are never exposed as
// content taxonomies.
const internalTaxonomiesSQL = `('language', 'term_language', 'post_translations', 'term_translations')`

type polylangOption struct {
	Taxonomies []string `json:"taxonomies"`
}

func (p *Pool) TaxonomyExists(ctx context.Context, taxonomy string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM cms.taxonomies WHERE name = $1)`

	var exists bool
	if err := p.QueryRow(ctx, q, strings.TrimSpace(taxonomy)).Scan(&exists); err != nil {
		return false, fmt.Errorf("query taxonomy exists: %w", err)
	}
	return exists, nil
}

func (p *Pool) TranslatableTaxonomies(ctx context.Context) ([]string, error) {
	const q = `
SELECT option_value::text
FROM cms.options
WHERE option_name = $1
LIMIT 1
`

	var raw string
	if err := p.QueryRow(ctx, q, polylangOptionName).Scan(&raw); err != nil {
		if IsNoRows(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("query polylang option: %w", err)
	}
	return decodeTranslatableTaxonomies(raw)
}

func decodeTranslatableTaxonomies(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}, nil
	}
	var option polylangOption
	if err := json.Unmarshal([]byte(trimmed), &option); err != nil {
		return nil, fmt.Errorf("decode polylang option: %w", err)
	}

	out := make([]string, 0, len(option.Taxonomies))
	seen := make(map[string]struct{}, len(option.Taxonomies))
	for _, name := range option.Taxonomies {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func (p *Pool) GetTerm(ctx context.Context, termID int64) (*translation.Term, error) {
	q := `
SELECT
	t.term_id,
	t.name,
	t.slug,
	tt.taxonomy,
	tt.description,
	tt.count
FROM cms.terms t
JOIN cms.term_taxonomy tt
	ON tt.term_id = t.term_id
WHERE t.term_id = $1
	AND tt.taxonomy NOT IN ` + internalTaxonomiesSQL + `
ORDER BY tt.term_taxonomy_id
LIMIT 1
`

	var term translation.Term
	if err := p.QueryRow(ctx, q, termID).Scan(
		&term.ID,
		&term.Name,
		&term.Slug,
		&term.Taxonomy,
		&term.Description,
		&term.Count,
	); err != nil {
		if IsNoRows(err) {
			return nil, translation.ErrNotFound
		}
		return nil, fmt.Errorf("query term: %w", err)
	}
	return &term, nil
}

func (p *Pool) GetPost(ctx context.Context, postID int64) (*translation.Post, error) {
	const q = `
SELECT
	post_id,
	title,
	post_type,
	status
FROM cms.posts
WHERE post_id = $1
LIMIT 1
`

	var post translation.Post
	if err := p.QueryRow(ctx, q, postID).Scan(
		&post.ID,
		&post.Title,
		&post.Type,
		&post.Status,
	); err != nil {
		if IsNoRows(err) {
			return nil, translation.ErrNotFound
		}
		return nil, fmt.Errorf("query post: %w", err)
	}
	return &post, nil
}

func (p *Pool) ListTerms(ctx context.Context, taxonomy, lang string) ([]translation.TermListing, error) {
	const q = `
SELECT
	t.term_id,
	t.name,
	t.slug,
	tt.description,
	tt.count,
	COALESCE(lang.slug, ''),
	COALESCE(grp.description, '')
FROM cms.terms t
JOIN cms.term_taxonomy tt
	ON tt.term_id = t.term_id
	AND tt.taxonomy = $1
LEFT JOIN LATERAL (
	SELECT lt.slug
	FROM cms.term_relationships r
	JOIN cms.term_taxonomy ltt
		ON ltt.term_taxonomy_id = r.term_taxonomy_id
		AND ltt.taxonomy = 'term_language'
	JOIN cms.terms lt
		ON lt.term_id = ltt.term_id
	WHERE r.object_id = t.term_id
	LIMIT 1
) lang ON true
LEFT JOIN LATERAL (
	SELECT gtt.description
	FROM cms.term_relationships r
	JOIN cms.term_taxonomy gtt
		ON gtt.term_taxonomy_id = r.term_taxonomy_id
		AND gtt.taxonomy = 'term_translations'
	WHERE r.object_id = t.term_id
	LIMIT 1
) grp ON true
WHERE ($2::text = '' OR lang.slug = $2::text)
ORDER BY t.name ASC, t.term_id ASC
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(taxonomy), strings.TrimSpace(lang))
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}
	defer rows.Close()

	items := make([]translation.TermListing, 0)
	for rows.Next() {
		var (
			item             translation.TermListing
			groupDescription string
		)
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Slug,
			&item.Description,
			&item.Count,
			&item.Language,
			&groupDescription,
		); err != nil {
			return nil, fmt.Errorf("scan term row: %w", err)
		}
		item.Translations, err = resolveTranslations(item.ID, item.Language, groupDescription)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate term rows: %w", err)
	}
	return items, nil
}

// resolveTranslations prefers the group payload, then the object's own
// language, then nothing.
func resolveTranslations(objectID int64, lang, groupDescription string) (translation.Translations, error) {
	if strings.TrimSpace(groupDescription) != "" {
		members, err := translation.DecodeMembers(groupDescription)
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			return members, nil
		}
	}
	if lang != "" {
		return translation.Translations{lang: objectID}, nil
	}
	return translation.Translations{}, nil
}
