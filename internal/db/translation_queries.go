package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/language"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

// languageMeta is the JSON payload kept in the description of a term in the
// language taxonomy.
type languageMeta struct {
	Locale string `json:"locale"`
	Flag   string `json:"flag"`
	Order  int    `json:"order"`
}

type languageRow struct {
	TermID      int64
	Name        string
	Slug        string
	Description string
}

func (p *Pool) Languages(ctx context.Context) ([]translation.Language, error) {
	const q = `
SELECT
	t.term_id,
	t.name,
	t.slug,
	tt.description
FROM cms.terms t
JOIN cms.term_taxonomy tt
	ON tt.term_id = t.term_id
	AND tt.taxonomy = 'language'
ORDER BY t.term_id ASC
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query languages: %w", err)
	}
	defer rows.Close()

	items := make([]languageRow, 0)
	for rows.Next() {
		var row languageRow
		if err := rows.Scan(&row.TermID, &row.Name, &row.Slug, &row.Description); err != nil {
			return nil, fmt.Errorf("scan language row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate language rows: %w", err)
	}
	return buildLanguages(items, p.logger), nil
}

// buildLanguages decodes language rows and orders them by their configured
// order. Rows with equal order keep their input order. A row whose metadata
// does not decode is kept without locale, flag and order.
func buildLanguages(rows []languageRow, logger zerolog.Logger) []translation.Language {
	out := make([]translation.Language, 0, len(rows))
	for _, row := range rows {
		var meta languageMeta
		if trimmed := strings.TrimSpace(row.Description); trimmed != "" {
			if err := json.Unmarshal([]byte(trimmed), &meta); err != nil {
				logger.Warn().Err(err).
					Int64("term_id", row.TermID).
					Str("slug", row.Slug).
					Msg("language metadata is not valid JSON; using defaults")
				meta = languageMeta{}
			}
		}
		name := strings.TrimSpace(row.Name)
		if name == "" {
			name = row.Slug
		}
		out = append(out, translation.Language{
			Slug:   row.Slug,
			Name:   name,
			Locale: language.NormalizeLocale(meta.Locale),
			Flag:   strings.TrimSpace(meta.Flag),
			Order:  meta.Order,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

func (p *Pool) Translations(ctx context.Context, objectType translation.ObjectType, objectID int64) (translation.Translations, error) {
	return translationsOf(ctx, p, objectType, objectID)
}

func (p *Pool) ObjectLanguage(ctx context.Context, objectType translation.ObjectType, objectID int64) (string, error) {
	return objectLanguage(ctx, p, objectType, objectID)
}

func (p *Pool) SetLanguage(ctx context.Context, objectType translation.ObjectType, objectID int64, lang string) error {
	return p.WithTx(ctx, func(tx querier) error {
		return setLanguage(ctx, tx, objectType, objectID, lang)
	})
}

// LinkGroup runs every write in one transaction: language tags, detaching
// members from their previous groups, and creating the new group.
func (p *Pool) LinkGroup(ctx context.Context, objectType translation.ObjectType, members translation.Translations) (*translation.Group, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("link %s group: no members", objectType)
	}

	langs := make([]string, 0, len(members))
	for lang := range members {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var group *translation.Group
	err := p.WithTx(ctx, func(tx querier) error {
		for _, lang := range langs {
			if err := setLanguage(ctx, tx, objectType, members[lang], lang); err != nil {
				return err
			}
		}
		for _, lang := range langs {
			if err := detachFromGroup(ctx, tx, objectType, members[lang]); err != nil {
				return err
			}
		}

		created, err := createGroup(ctx, tx, objectType, members)
		if err != nil {
			return err
		}
		group = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func translationsOf(ctx context.Context, q querier, objectType translation.ObjectType, objectID int64) (translation.Translations, error) {
	lang, err := objectLanguage(ctx, q, objectType, objectID)
	if err != nil {
		return nil, err
	}
	_, description, err := objectGroup(ctx, q, objectType, objectID)
	if err != nil {
		return nil, err
	}
	members, err := resolveTranslations(objectID, lang, description)
	if err != nil {
		return nil, fmt.Errorf("%s %d translations: %w", objectType, objectID, err)
	}
	return members, nil
}

func objectLanguage(ctx context.Context, q querier, objectType translation.ObjectType, objectID int64) (string, error) {
	const query = `
SELECT t.slug
FROM cms.term_relationships r
JOIN cms.term_taxonomy tt
	ON tt.term_taxonomy_id = r.term_taxonomy_id
	AND tt.taxonomy = $2
JOIN cms.terms t
	ON t.term_id = tt.term_id
WHERE r.object_id = $1
ORDER BY tt.term_taxonomy_id
LIMIT 1
`

	var slug string
	if err := q.QueryRow(ctx, query, objectID, objectType.LanguageTaxonomy()).Scan(&slug); err != nil {
		if IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("query %s %d language: %w", objectType, objectID, err)
	}
	return slug, nil
}

// objectGroup returns the term_taxonomy_id and description of the group
// objectID belongs to, or zero values when it is ungrouped.
func objectGroup(ctx context.Context, q querier, objectType translation.ObjectType, objectID int64) (int64, string, error) {
	const query = `
SELECT
	tt.term_taxonomy_id,
	tt.description
FROM cms.term_relationships r
JOIN cms.term_taxonomy tt
	ON tt.term_taxonomy_id = r.term_taxonomy_id
	AND tt.taxonomy = $2
WHERE r.object_id = $1
ORDER BY tt.term_taxonomy_id
LIMIT 1
`

	var (
		termTaxonomyID int64
		description    string
	)
	if err := q.QueryRow(ctx, query, objectID, objectType.GroupTaxonomy()).Scan(&termTaxonomyID, &description); err != nil {
		if IsNoRows(err) {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("query %s %d group: %w", objectType, objectID, err)
	}
	return termTaxonomyID, description, nil
}

func objectExists(ctx context.Context, q querier, objectType translation.ObjectType, objectID int64) (bool, error) {
	var query string
	switch objectType {
	case translation.ObjectPost:
		query = `SELECT EXISTS (SELECT 1 FROM cms.posts WHERE post_id = $1)`
	case translation.ObjectTerm:
		query = `
SELECT EXISTS (
	SELECT 1
	FROM cms.term_taxonomy
	WHERE term_id = $1
		AND taxonomy NOT IN ` + internalTaxonomiesSQL + `
)`
	default:
		return false, fmt.Errorf("unsupported object type %q", objectType)
	}

	var exists bool
	if err := q.QueryRow(ctx, query, objectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("query %s %d exists: %w", objectType, objectID, err)
	}
	return exists, nil
}

// languageTermTaxonomy resolves the term_taxonomy_id tagging objects of
// objectType with lang. The term_language entry is created on first use for
// any slug configured in the language taxonomy.
func languageTermTaxonomy(ctx context.Context, q querier, objectType translation.ObjectType, lang string) (int64, error) {
	const lookup = `
SELECT tt.term_taxonomy_id
FROM cms.term_taxonomy tt
JOIN cms.terms t
	ON t.term_id = tt.term_id
WHERE tt.taxonomy = $1
	AND t.slug = $2
ORDER BY tt.term_taxonomy_id
LIMIT 1
`

	var termTaxonomyID int64
	err := q.QueryRow(ctx, lookup, objectType.LanguageTaxonomy(), lang).Scan(&termTaxonomyID)
	if err == nil {
		return termTaxonomyID, nil
	}
	if !IsNoRows(err) {
		return 0, fmt.Errorf("query %s language %q: %w", objectType, lang, err)
	}
	if objectType != translation.ObjectTerm {
		return 0, fmt.Errorf("language %q: %w", lang, translation.ErrUnknownLanguage)
	}

	var name string
	if err := q.QueryRow(ctx, lookup, translation.ObjectPost.LanguageTaxonomy(), lang).Scan(&termTaxonomyID); err != nil {
		if IsNoRows(err) {
			return 0, fmt.Errorf("language %q: %w", lang, translation.ErrUnknownLanguage)
		}
		return 0, fmt.Errorf("query language %q: %w", lang, err)
	}
	if err := q.QueryRow(ctx, `SELECT t.name FROM cms.terms t JOIN cms.term_taxonomy tt ON tt.term_id = t.term_id WHERE tt.term_taxonomy_id = $1`, termTaxonomyID).Scan(&name); err != nil {
		return 0, fmt.Errorf("query language %q name: %w", lang, err)
	}

	termID, err := insertTerm(ctx, q, name, lang)
	if err != nil {
		return 0, err
	}
	return insertTermTaxonomy(ctx, q, termID, objectType.LanguageTaxonomy(), "", 0)
}

func setLanguage(ctx context.Context, q querier, objectType translation.ObjectType, objectID int64, lang string) error {
	exists, err := objectExists(ctx, q, objectType, objectID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("set %s %d language: %w", objectType, objectID, translation.ErrNotFound)
	}

	termTaxonomyID, err := languageTermTaxonomy(ctx, q, objectType, lang)
	if err != nil {
		return fmt.Errorf("set %s %d language: %w", objectType, objectID, err)
	}

	const clear = `
DELETE FROM cms.term_relationships r
USING cms.term_taxonomy tt
WHERE r.term_taxonomy_id = tt.term_taxonomy_id
	AND tt.taxonomy = $2
	AND r.object_id = $1
`
	if _, err := q.Exec(ctx, clear, objectID, objectType.LanguageTaxonomy()); err != nil {
		return fmt.Errorf("clear %s %d language: %w", objectType, objectID, err)
	}
	if err := insertRelationship(ctx, q, objectID, termTaxonomyID); err != nil {
		return err
	}
	return recountLanguageTaxonomy(ctx, q, objectType)
}

// detachFromGroup removes objectID from its current group. A group left
// without members is deleted.
func detachFromGroup(ctx context.Context, q querier, objectType translation.ObjectType, objectID int64) error {
	termTaxonomyID, description, err := objectGroup(ctx, q, objectType, objectID)
	if err != nil {
		return err
	}
	if termTaxonomyID == 0 {
		return nil
	}

	const unlink = `
DELETE FROM cms.term_relationships
WHERE object_id = $1
	AND term_taxonomy_id = $2
`
	if _, err := q.Exec(ctx, unlink, objectID, termTaxonomyID); err != nil {
		return fmt.Errorf("detach %s %d from group: %w", objectType, objectID, err)
	}

	remaining, err := remainingMembers(description, objectID)
	if err != nil {
		return fmt.Errorf("detach %s %d from group %d: %w", objectType, objectID, termTaxonomyID, err)
	}
	if len(remaining) == 0 {
		return deleteGroup(ctx, q, termTaxonomyID)
	}

	encoded, err := translation.EncodeMembers(remaining)
	if err != nil {
		return err
	}
	const update = `
UPDATE cms.term_taxonomy
SET description = $2,
	count = $3
WHERE term_taxonomy_id = $1
`
	if _, err := q.Exec(ctx, update, termTaxonomyID, encoded, len(remaining)); err != nil {
		return fmt.Errorf("update group %d: %w", termTaxonomyID, err)
	}
	return nil
}

// remainingMembers decodes a group payload and drops objectID from it. An
// unreadable payload is an error so the enclosing transaction rolls back.
func remainingMembers(description string, objectID int64) (translation.Translations, error) {
	members, err := translation.DecodeMembers(description)
	if err != nil {
		return nil, err
	}
	return members.WithoutObject(objectID), nil
}

func deleteGroup(ctx context.Context, q querier, termTaxonomyID int64) error {
	const deleteRelationships = `DELETE FROM cms.term_relationships WHERE term_taxonomy_id = $1`
	const deleteTaxonomy = `DELETE FROM cms.term_taxonomy WHERE term_taxonomy_id = $1 RETURNING term_id`
	const deleteTerm = `DELETE FROM cms.terms WHERE term_id = $1`

	if _, err := q.Exec(ctx, deleteRelationships, termTaxonomyID); err != nil {
		return fmt.Errorf("delete group %d relationships: %w", termTaxonomyID, err)
	}
	var termID int64
	if err := q.QueryRow(ctx, deleteTaxonomy, termTaxonomyID).Scan(&termID); err != nil {
		return fmt.Errorf("delete group %d: %w", termTaxonomyID, err)
	}
	if _, err := q.Exec(ctx, deleteTerm, termID); err != nil {
		return fmt.Errorf("delete group term %d: %w", termID, err)
	}
	return nil
}

func createGroup(ctx context.Context, q querier, objectType translation.ObjectType, members translation.Translations) (*translation.Group, error) {
	encoded, err := translation.EncodeMembers(members)
	if err != nil {
		return nil, err
	}

	name := translation.NewGroupName()
	termID, err := insertTerm(ctx, q, name, name)
	if err != nil {
		return nil, err
	}
	termTaxonomyID, err := insertTermTaxonomy(ctx, q, termID, objectType.GroupTaxonomy(), encoded, int64(len(members)))
	if err != nil {
		return nil, err
	}
	for _, id := range members.IDs() {
		if err := insertRelationship(ctx, q, id, termTaxonomyID); err != nil {
			return nil, err
		}
	}

	return &translation.Group{
		ID:      termID,
		Name:    name,
		Members: members.Clone(),
	}, nil
}

func insertTerm(ctx context.Context, q querier, name, slug string) (int64, error) {
	const query = `
INSERT INTO cms.terms (name, slug, term_group, created_at)
VALUES ($1, $2, 0, now())
RETURNING term_id
`

	var termID int64
	if err := q.QueryRow(ctx, query, name, slug).Scan(&termID); err != nil {
		return 0, fmt.Errorf("insert term %q: %w", slug, err)
	}
	return termID, nil
}

func insertTermTaxonomy(ctx context.Context, q querier, termID int64, taxonomy, description string, count int64) (int64, error) {
	const query = `
INSERT INTO cms.term_taxonomy (term_id, taxonomy, description, parent, count)
VALUES ($1, $2, $3, 0, $4)
RETURNING term_taxonomy_id
`

	var termTaxonomyID int64
	if err := q.QueryRow(ctx, query, termID, taxonomy, description, count).Scan(&termTaxonomyID); err != nil {
		return 0, fmt.Errorf("insert %s term taxonomy: %w", taxonomy, err)
	}
	return termTaxonomyID, nil
}

func insertRelationship(ctx context.Context, q querier, objectID, termTaxonomyID int64) error {
	const query = `
INSERT INTO cms.term_relationships (object_id, term_taxonomy_id, term_order)
VALUES ($1, $2, 0)
ON CONFLICT (object_id, term_taxonomy_id) DO NOTHING
`

	if _, err := q.Exec(ctx, query, objectID, termTaxonomyID); err != nil {
		return fmt.Errorf("relate object %d to %d: %w", objectID, termTaxonomyID, err)
	}
	return nil
}

func recountLanguageTaxonomy(ctx context.Context, q querier, objectType translation.ObjectType) error {
	const query = `
UPDATE cms.term_taxonomy tt
SET count = (
	SELECT COUNT(*)
	FROM cms.term_relationships r
	WHERE r.term_taxonomy_id = tt.term_taxonomy_id
)
WHERE tt.taxonomy = $1
`

	if _, err := q.Exec(ctx, query, objectType.LanguageTaxonomy()); err != nil {
		return fmt.Errorf("recount %s: %w", objectType.LanguageTaxonomy(), err)
	}
	return nil
}
