package translation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a process-local Store. It backs STORE_DRIVER=memory and tests.
type MemoryStore struct {
	mu sync.RWMutex

	taxonomies   map[string]struct{}
	translatable []string
	languages    []Language
	terms        map[int64]Term
	posts        map[int64]Post

	objectLangs map[ObjectType]map[int64]string
	groups      map[ObjectType]map[int64]*Group
	membership  map[ObjectType]map[int64]int64
	nextGroupID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		taxonomies: map[string]struct{}{},
		terms:      map[int64]Term{},
		posts:      map[int64]Post{},
		objectLangs: map[ObjectType]map[int64]string{
			ObjectTerm: {},
			ObjectPost: {},
		},
		groups: map[ObjectType]map[int64]*Group{
			ObjectTerm: {},
			ObjectPost: {},
		},
		membership: map[ObjectType]map[int64]int64{
			ObjectTerm: {},
			ObjectPost: {},
		},
		nextGroupID: 1,
	}
}

// AddTaxonomy registers a taxonomy, optionally marking it translatable.
func (s *MemoryStore) AddTaxonomy(name string, translatable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	s.taxonomies[name] = struct{}{}
	if translatable && !containsString(s.translatable, name) {
		s.translatable = append(s.translatable, name)
	}
}

// AddLanguage appends a language; Languages returns them sorted by Order
// with insertion order breaking ties.
func (s *MemoryStore) AddLanguage(lang Language) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.languages = append(s.languages, lang)
	sort.SliceStable(s.languages, func(i, j int) bool {
		return s.languages[i].Order < s.languages[j].Order
	})
}

// AddTerm stores term and, when lang is non-empty, tags it with lang.
func (s *MemoryStore) AddTerm(term Term, lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terms[term.ID] = term
	if lang != "" {
		s.objectLangs[ObjectTerm][term.ID] = lang
	}
}

// AddPost stores post and, when lang is non-empty, tags it with lang.
func (s *MemoryStore) AddPost(post Post, lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts[post.ID] = post
	if lang != "" {
		s.objectLangs[ObjectPost][post.ID] = lang
	}
}

func (s *MemoryStore) TaxonomyExists(_ context.Context, taxonomy string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.taxonomies[strings.TrimSpace(taxonomy)]
	return ok, nil
}

func (s *MemoryStore) TranslatableTaxonomies(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.translatable...), nil
}

func (s *MemoryStore) GetTerm(_ context.Context, termID int64) (*Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term, ok := s.terms[termID]
	if !ok {
		return nil, ErrNotFound
	}
	return &term, nil
}

func (s *MemoryStore) GetPost(_ context.Context, postID int64) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[postID]
	if !ok {
		return nil, ErrNotFound
	}
	return &post, nil
}

func (s *MemoryStore) ListTerms(_ context.Context, taxonomy, lang string) ([]TermListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	taxonomy = strings.TrimSpace(taxonomy)
	items := make([]TermListing, 0)
	for _, term := range s.terms {
		if term.Taxonomy != taxonomy {
			continue
		}
		termLang := s.objectLangs[ObjectTerm][term.ID]
		if lang != "" && termLang != lang {
			continue
		}
		items = append(items, TermListing{
			ID:           term.ID,
			Name:         term.Name,
			Slug:         term.Slug,
			Description:  term.Description,
			Count:        term.Count,
			Language:     termLang,
			Translations: s.translationsLocked(ObjectTerm, term.ID),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) Languages(_ context.Context) ([]Language, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Language(nil), s.languages...), nil
}

func (s *MemoryStore) Translations(_ context.Context, objectType ObjectType, objectID int64) (Translations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.translationsLocked(objectType, objectID), nil
}

func (s *MemoryStore) ObjectLanguage(_ context.Context, objectType ObjectType, objectID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.objectLangs[objectType][objectID], nil
}

func (s *MemoryStore) SetLanguage(_ context.Context, objectType ObjectType, objectID int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.objectExistsLocked(objectType, objectID) {
		return fmt.Errorf("set %s %d language: %w", objectType, objectID, ErrNotFound)
	}
	if !s.languageExistsLocked(lang) {
		return fmt.Errorf("set %s %d language %q: %w", objectType, objectID, lang, ErrUnknownLanguage)
	}
	s.objectLangs[objectType][objectID] = lang
	return nil
}

func (s *MemoryStore) LinkGroup(_ context.Context, objectType ObjectType, members Translations) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(members) == 0 {
		return nil, fmt.Errorf("link %s group: no members", objectType)
	}
	for lang, id := range members {
		if !s.languageExistsLocked(lang) {
			return nil, fmt.Errorf("link %s group language %q: %w", objectType, lang, ErrUnknownLanguage)
		}
		if !s.objectExistsLocked(objectType, id) {
			return nil, fmt.Errorf("link %s group member %d: %w", objectType, id, ErrNotFound)
		}
	}

	for _, id := range members {
		s.detachLocked(objectType, id)
	}

	group := &Group{
		ID:      s.nextGroupID,
		Name:    NewGroupName(),
		Members: members.Clone(),
	}
	s.nextGroupID++
	s.groups[objectType][group.ID] = group
	for lang, id := range members {
		s.membership[objectType][id] = group.ID
		s.objectLangs[objectType][id] = lang
	}

	out := *group
	out.Members = group.Members.Clone()
	return &out, nil
}

// GroupCount returns the number of groups stored for objectType.
func (s *MemoryStore) GroupCount(objectType ObjectType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.groups[objectType])
}

func (s *MemoryStore) translationsLocked(objectType ObjectType, objectID int64) Translations {
	if groupID, ok := s.membership[objectType][objectID]; ok {
		if group, exists := s.groups[objectType][groupID]; exists {
			return group.Members.Clone()
		}
	}
	if lang := s.objectLangs[objectType][objectID]; lang != "" {
		return Translations{lang: objectID}
	}
	return Translations{}
}

func (s *MemoryStore) detachLocked(objectType ObjectType, objectID int64) {
	groupID, ok := s.membership[objectType][objectID]
	if !ok {
		return
	}
	delete(s.membership[objectType], objectID)

	group, exists := s.groups[objectType][groupID]
	if !exists {
		return
	}
	group.Members = group.Members.WithoutObject(objectID)
	if len(group.Members) == 0 {
		delete(s.groups[objectType], groupID)
	}
}

func (s *MemoryStore) objectExistsLocked(objectType ObjectType, objectID int64) bool {
	switch objectType {
	case ObjectTerm:
		_, ok := s.terms[objectID]
		return ok
	case ObjectPost:
		_, ok := s.posts[objectID]
		return ok
	default:
		return false
	}
}

func (s *MemoryStore) languageExistsLocked(slug string) bool {
	for _, lang := range s.languages {
		if lang.Slug == slug {
			return true
		}
	}
	return false
}

func containsString(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}
