// Package domain provides type-safe identifiers so provider, license and log ids
// cannot be mixed up at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "bobinator/pkg/domain-errors"
)

type (
	ProviderID   uuid.UUID
	LicenseID    uuid.UUID
	CredentialID uuid.UUID
	LogEntryID   uuid.UUID
)

func NewProviderID() ProviderID     { return ProviderID(uuid.New()) }
func NewLicenseID() LicenseID       { return LicenseID(uuid.New()) }
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }
func NewLogEntryID() LogEntryID     { return LogEntryID(uuid.New()) }

// Parse functions are used at trust boundaries (handlers, CLI flags).

func ParseProviderID(s string) (ProviderID, error) {
	id, err := parseUUID(s, "provider ID")
	return ProviderID(id), err
}

func ParseLicenseID(s string) (LicenseID, error) {
	id, err := parseUUID(s, "license ID")
	return LicenseID(id), err
}

func (id ProviderID) String() string   { return uuid.UUID(id).String() }
func (id LicenseID) String() string    { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id LogEntryID) String() string   { return uuid.UUID(id).String() }

func (id ProviderID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id LicenseID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps ids readable in JSON payloads and Kafka events.

func (id ProviderID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id LicenseID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id CredentialID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id LogEntryID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *ProviderID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *LicenseID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *CredentialID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *LogEntryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
