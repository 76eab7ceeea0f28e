// Package prefixed_uuid builds human-readable identifiers of the form "<prefix>-<uuid>".
// Conversation sessions are tagged "conv-<uuid>".
package prefixed_uuid //nolint:revive // var-naming: package name matches directory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixedUUID is a UUID carrying a type prefix.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New generates a random UUID under prefix.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: uuid.New()}
}

// FromString parses "prefix-uuid". The prefix itself may not contain '-'.
func FromString(s string) (PrefixedUUID, error) {
	prefix, raw, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID format: %q", s)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid UUID: %w", err)
	}
	return PrefixedUUID{Prefix: prefix, UUID: id}, nil
}

// String returns "prefix-uuid".
func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero reports whether p is uninitialised.
func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

// MarshalJSON encodes p as its string form.
func (p PrefixedUUID) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes the string form. An empty string yields the zero value.
func (p *PrefixedUUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("prefixed UUID must be a JSON string: %w", err)
	}
	if s == "" {
		*p = PrefixedUUID{}
		return nil
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
