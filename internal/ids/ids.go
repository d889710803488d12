// Package ids defines the strongly-typed identifiers used across mcbridge.
//
// Every entity kind gets its own UUID-backed type with two construction
// modes: a random v4 id, and a deterministic v5 id derived from a per-kind
// namespace and a human-readable name. The per-kind namespaces guarantee
// that FromName("x") on two different kinds never collides.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Per-kind v5 namespaces. Fixed forever: changing one would orphan every
// deterministically-derived id already persisted.
var (
	nsCollection  = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("mcbridge.collection"))
	nsObservation = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("mcbridge.observation"))
	nsSession     = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("mcbridge.session"))
	nsOperation   = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("mcbridge.operation"))
	nsRepository  = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("mcbridge.repository"))
)

// CollectionID identifies a named, dimension-typed vector index.
type CollectionID struct{ uuid.UUID }

// ObservationID identifies a memory observation.
type ObservationID struct{ uuid.UUID }

// SessionID identifies an agent session.
type SessionID struct{ uuid.UUID }

// OperationID identifies a running indexing operation.
type OperationID struct{ uuid.UUID }

// RepositoryID identifies a registered VCS repository.
type RepositoryID struct{ uuid.UUID }

func NewCollectionID() CollectionID   { return CollectionID{uuid.New()} }
func NewObservationID() ObservationID { return ObservationID{uuid.New()} }
func NewSessionID() SessionID         { return SessionID{uuid.New()} }
func NewOperationID() OperationID     { return OperationID{uuid.New()} }
func NewRepositoryID() RepositoryID   { return RepositoryID{uuid.New()} }

// CollectionFromName derives a stable id from a human collection name.
func CollectionFromName(name string) CollectionID {
	return CollectionID{uuid.NewSHA1(nsCollection, []byte(normalizeName(name)))}
}

// ObservationFromName derives a stable observation id from a name.
func ObservationFromName(name string) ObservationID {
	return ObservationID{uuid.NewSHA1(nsObservation, []byte(normalizeName(name)))}
}

// SessionFromName derives a stable session id from a name.
func SessionFromName(name string) SessionID {
	return SessionID{uuid.NewSHA1(nsSession, []byte(normalizeName(name)))}
}

// RepositoryFromName derives a stable repository id from a normalized URL.
func RepositoryFromName(name string) RepositoryID {
	return RepositoryID{uuid.NewSHA1(nsRepository, []byte(normalizeName(name)))}
}

// ParseCollectionID parses s as a UUID, falling back to name derivation.
func ParseCollectionID(s string) (CollectionID, error) {
	u, ok, err := parse(s)
	if err != nil {
		return CollectionID{}, err
	}
	if ok {
		return CollectionID{u}, nil
	}
	return CollectionFromName(s), nil
}

// ParseObservationID parses s as a UUID, falling back to name derivation.
func ParseObservationID(s string) (ObservationID, error) {
	u, ok, err := parse(s)
	if err != nil {
		return ObservationID{}, err
	}
	if ok {
		return ObservationID{u}, nil
	}
	return ObservationFromName(s), nil
}

// ParseSessionID parses s as a UUID, falling back to name derivation.
func ParseSessionID(s string) (SessionID, error) {
	u, ok, err := parse(s)
	if err != nil {
		return SessionID{}, err
	}
	if ok {
		return SessionID{u}, nil
	}
	return SessionFromName(s), nil
}

// ParseOperationID parses s strictly as a UUID. Operation ids are never
// name-derived: they only exist for the lifetime of one indexing run.
func ParseOperationID(s string) (OperationID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return OperationID{}, fmt.Errorf("invalid operation id %q: %w", s, err)
	}
	return OperationID{u}, nil
}

// parse tries strict UUID parsing. ok=false means "not a UUID, derive from
// name instead"; an error is returned only for unusable input.
func parse(s string) (uuid.UUID, bool, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return uuid.Nil, false, fmt.Errorf("id cannot be empty")
	}
	if u, err := uuid.Parse(trimmed); err == nil {
		return u, true, nil
	}
	return uuid.Nil, false, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (id CollectionID) IsZero() bool  { return id.UUID == uuid.Nil }
func (id ObservationID) IsZero() bool { return id.UUID == uuid.Nil }
func (id SessionID) IsZero() bool     { return id.UUID == uuid.Nil }
func (id OperationID) IsZero() bool   { return id.UUID == uuid.Nil }
func (id RepositoryID) IsZero() bool  { return id.UUID == uuid.Nil }
