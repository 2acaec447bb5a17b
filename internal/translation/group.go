package translation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const groupNamePrefix = "pll_"

// NewGroupName allocates a unique name for a translation group.
func NewGroupName() string {
	return groupNamePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EncodeMembers serializes group members for the group description column.
func EncodeMembers(members Translations) (string, error) {
	if members == nil {
		members = Translations{}
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return "", fmt.Errorf("encode group members: %w", err)
	}
	return string(raw), nil
}

// DecodeMembers parses a group description. Blank input yields an empty map.
func DecodeMembers(description string) (Translations, error) {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return Translations{}, nil
	}
	var members Translations
	if err := json.Unmarshal([]byte(trimmed), &members); err != nil {
		return nil, fmt.Errorf("decode group members: %w", err)
	}
	if members == nil {
		members = Translations{}
	}
	return members, nil
}

// WithoutObject returns a copy of members with every entry for objectID removed.
func (t Translations) WithoutObject(objectID int64) Translations {
	out := make(Translations, len(t))
	for lang, id := range t {
		if id == objectID {
			continue
		}
		out[lang] = id
	}
	return out
}
