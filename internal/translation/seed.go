package translation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/language"
)

// Seed is the YAML fixture format accepted by LoadSeedFile.
type Seed struct {
	Taxonomies             []string    `yaml:"taxonomies"`
	TranslatableTaxonomies []string    `yaml:"translatable_taxonomies"`
	Languages              []Language  `yaml:"languages"`
	Terms                  []seedTerm  `yaml:"terms"`
	Posts                  []seedPost  `yaml:"posts"`
	Groups                 []seedGroup `yaml:"groups"`
}

type seedTerm struct {
	Term     `yaml:",inline"`
	Language string `yaml:"language"`
}

type seedPost struct {
	Post     `yaml:",inline"`
	Language string `yaml:"language"`
}

type seedGroup struct {
	Type    ObjectType   `yaml:"type"`
	Members Translations `yaml:"members"`
}

// LoadSeedFile reads a YAML fixture from path into a new MemoryStore.
func LoadSeedFile(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return LoadSeed(raw)
}

// LoadSeed parses a YAML fixture into a new MemoryStore.
func LoadSeed(raw []byte) (*MemoryStore, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	store := NewMemoryStore()
	translatable := make(map[string]struct{}, len(seed.TranslatableTaxonomies))
	for _, name := range seed.TranslatableTaxonomies {
		translatable[strings.TrimSpace(name)] = struct{}{}
	}
	for _, name := range seed.Taxonomies {
		_, ok := translatable[strings.TrimSpace(name)]
		store.AddTaxonomy(name, ok)
	}
	for idx, lang := range seed.Languages {
		if strings.TrimSpace(lang.Slug) == "" {
			return nil, fmt.Errorf("seed languages[%d]: slug is required", idx)
		}
		slug := language.NormalizeSlug(lang.Slug)
		if slug == "" {
			return nil, fmt.Errorf("seed languages[%d]: invalid slug %q", idx, lang.Slug)
		}
		if strings.TrimSpace(lang.Name) == "" {
			lang.Name = slug
		}
		lang.Slug = slug
		lang.Locale = language.NormalizeLocale(lang.Locale)
		store.AddLanguage(lang)
	}
	for idx, term := range seed.Terms {
		if term.ID <= 0 {
			return nil, fmt.Errorf("seed terms[%d]: id must be positive", idx)
		}
		store.AddTerm(term.Term, language.NormalizeSlug(term.Language))
	}
	for idx, post := range seed.Posts {
		if post.ID <= 0 {
			return nil, fmt.Errorf("seed posts[%d]: id must be positive", idx)
		}
		store.AddPost(post.Post, language.NormalizeSlug(post.Language))
	}
	for idx, group := range seed.Groups {
		members := make(Translations, len(group.Members))
		for lang, id := range group.Members {
			members[language.NormalizeSlug(lang)] = id
		}
		if _, err := store.LinkGroup(context.Background(), group.Type, members); err != nil {
			return nil, fmt.Errorf("seed groups[%d]: %w", idx, err)
		}
	}
	return store, nil
}
