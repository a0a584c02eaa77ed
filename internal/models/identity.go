package models

import (
	"encoding/json"
	"fmt"
)

// ambiguousMarker is how the external dedup service spells "could not identify"
const ambiguousMarker = "oops"

type identityKind uint8

const (
	identityUnassigned identityKind = iota
	identityResolved
	identityAmbiguous
)

// PersonIdentity is either a resolved unified id, an ambiguous marker,
// or unassigned. The zero value is unassigned.
type PersonIdentity struct {
	kind identityKind
	id   string
}

// Resolved returns an identity pointing at a unified id
func Resolved(unifiedID string) PersonIdentity {
	if unifiedID == "" {
		return PersonIdentity{}
	}
	return PersonIdentity{kind: identityResolved, id: unifiedID}
}

// Ambiguous returns an identity the dedup service could not determine
func Ambiguous() PersonIdentity {
	return PersonIdentity{kind: identityAmbiguous}
}

// ID returns the unified id and whether the identity is resolved
func (p PersonIdentity) ID() (string, bool) {
	return p.id, p.kind == identityResolved
}

func (p PersonIdentity) IsResolved() bool   { return p.kind == identityResolved }
func (p PersonIdentity) IsAmbiguous() bool  { return p.kind == identityAmbiguous }
func (p PersonIdentity) IsUnassigned() bool { return p.kind == identityUnassigned }

func (p PersonIdentity) String() string {
	switch p.kind {
	case identityResolved:
		return p.id
	case identityAmbiguous:
		return "<ambiguous>"
	default:
		return "<unassigned>"
	}
}

// MarshalJSON keeps the wire format of the dedup service
func (p PersonIdentity) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case identityResolved:
		return json.Marshal(p.id)
	case identityAmbiguous:
		return json.Marshal(ambiguousMarker)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string id, "oops", null, or the literal string "null"
func (p *PersonIdentity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = PersonIdentity{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode unified_id: %w", err)
	}

	switch raw {
	case "", "null":
		*p = PersonIdentity{}
	case ambiguousMarker:
		*p = Ambiguous()
	default:
		*p = Resolved(raw)
	}
	return nil
}
