package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

// Validator holds the read-only checks run against the host store.
type Validator struct {
	store translation.Store
}

func NewValidator(store translation.Store) *Validator {
	return &Validator{store: store}
}

// ValidTaxonomy reports whether name exists and is configured as translatable.
func (v *Validator) ValidTaxonomy(ctx context.Context, name string) (bool, error) {
	name = SanitizeText(name)
	if name == "" {
		return false, nil
	}

	exists, err := v.store.TaxonomyExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check taxonomy %q: %w", name, err)
	}
	if !exists {
		return false, nil
	}

	translatable, err := v.store.TranslatableTaxonomies(ctx)
	if err != nil {
		return false, fmt.Errorf("load translatable taxonomies: %w", err)
	}
	for _, candidate := range translatable {
		if candidate == name {
			return true, nil
		}
	}
	return false, nil
}

func (v *Validator) TermExists(ctx context.Context, termID int64) (bool, error) {
	if termID <= 0 {
		return false, nil
	}
	if _, err := v.store.GetTerm(ctx, termID); err != nil {
		if errors.Is(err, translation.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load term %d: %w", termID, err)
	}
	return true, nil
}

func (v *Validator) PostExists(ctx context.Context, postID int64) (bool, error) {
	if postID <= 0 {
		return false, nil
	}
	if _, err := v.store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, translation.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load post %d: %w", postID, err)
	}
	return true, nil
}

// ValidLanguage reports whether slug exactly matches a configured language.
func (v *Validator) ValidLanguage(ctx context.Context, slug string) (bool, error) {
	if slug == "" {
		return false, nil
	}
	languages, err := v.store.Languages(ctx)
	if err != nil {
		return false, fmt.Errorf("load languages: %w", err)
	}
	for _, lang := range languages {
		if lang.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// ValidateTaxonomyRequest returns every reason req cannot be synced as-is.
func ValidateTaxonomyRequest(req TaxonomyRequest) []string {
	reasons := make([]string, 0, 4)
	if strings.TrimSpace(req.Taxonomy) == "" {
		reasons = append(reasons, requiredReason("taxonomy"))
	}
	reasons = append(reasons, validatePair(
		"source_term_id", req.SourceTermID,
		"target_term_id", req.TargetTermID,
		req.SourceLang, req.TargetLang,
		"Source and target terms must be different.",
	)...)
	return reasons
}

func ValidatePostRequest(req PostRequest) []string {
	return validatePair(
		"source_post_id", req.SourcePostID,
		"target_post_id", req.TargetPostID,
		req.SourceLang, req.TargetLang,
		"Source and target posts must be different.",
	)
}

func validatePair(sourceField string, sourceID int64, targetField string, targetID int64, sourceLang, targetLang, sameObject string) []string {
	reasons := make([]string, 0, 4)
	if sourceID == 0 {
		reasons = append(reasons, requiredReason(sourceField))
	}
	if strings.TrimSpace(sourceLang) == "" {
		reasons = append(reasons, requiredReason("source_lang"))
	}
	if targetID == 0 {
		reasons = append(reasons, requiredReason(targetField))
	}
	if strings.TrimSpace(targetLang) == "" {
		reasons = append(reasons, requiredReason("target_lang"))
	}

	if sourceLang != "" && sourceLang == targetLang {
		reasons = append(reasons, "Source and target languages must be different.")
	}
	if sourceID != 0 && sourceID == targetID {
		reasons = append(reasons, sameObject)
	}
	return reasons
}

func requiredReason(field string) string {
	return fmt.Sprintf("Field %q is required.", field)
}

func SanitizeTaxonomyRequest(req TaxonomyRequest) TaxonomyRequest {
	return TaxonomyRequest{
		Taxonomy:     SanitizeText(req.Taxonomy),
		SourceTermID: AbsInt(req.SourceTermID),
		SourceLang:   SanitizeText(req.SourceLang),
		TargetTermID: AbsInt(req.TargetTermID),
		TargetLang:   SanitizeText(req.TargetLang),
	}
}

func SanitizePostRequest(req PostRequest) PostRequest {
	return PostRequest{
		SourcePostID: AbsInt(req.SourcePostID),
		SourceLang:   SanitizeText(req.SourceLang),
		TargetPostID: AbsInt(req.TargetPostID),
		TargetLang:   SanitizeText(req.TargetLang),
	}
}

// SanitizeText drops control characters and markup, collapses whitespace
// runs, and trims the result.
func SanitizeText(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inTag := false
	pendingSpace := false
	for _, r := range raw {
		switch {
		case r == '<':
			inTag = true
			continue
		case inTag:
			if r == '>' {
				inTag = false
			}
			continue
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func AbsInt(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}
