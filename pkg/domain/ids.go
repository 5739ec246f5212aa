// Package domain holds the typed identifiers shared across the module.
// External input is converted through the Parse helpers at trust boundaries;
// internal code passes the typed forms so a submission ID cannot be handed
// where a requirement ID belongs.
package domain

import (
	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
)

type (
	SubmissionID  uuid.UUID
	RequirementID uuid.UUID
	CaseID        uuid.UUID
	DocumentID    uuid.UUID
	UserID        uuid.UUID
	EscalationID  uuid.UUID
	BlockID       uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id cannot be nil", kind)
	}
	return u, nil
}

func NewSubmissionID() SubmissionID   { return SubmissionID(uuid.New()) }
func NewRequirementID() RequirementID { return RequirementID(uuid.New()) }
func NewCaseID() CaseID               { return CaseID(uuid.New()) }
func NewDocumentID() DocumentID       { return DocumentID(uuid.New()) }
func NewUserID() UserID               { return UserID(uuid.New()) }
func NewEscalationID() EscalationID   { return EscalationID(uuid.New()) }
func NewBlockID() BlockID             { return BlockID(uuid.New()) }

func ParseSubmissionID(s string) (SubmissionID, error) {
	u, err := parseUUID(s, "submission")
	return SubmissionID(u), err
}

func ParseRequirementID(s string) (RequirementID, error) {
	u, err := parseUUID(s, "requirement")
	return RequirementID(u), err
}

func ParseCaseID(s string) (CaseID, error) {
	u, err := parseUUID(s, "case")
	return CaseID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document")
	return DocumentID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

func ParseEscalationID(s string) (EscalationID, error) {
	u, err := parseUUID(s, "escalation")
	return EscalationID(u), err
}

func (v SubmissionID) String() string  { return uuid.UUID(v).String() }
func (v RequirementID) String() string { return uuid.UUID(v).String() }
func (v CaseID) String() string        { return uuid.UUID(v).String() }
func (v DocumentID) String() string    { return uuid.UUID(v).String() }
func (v UserID) String() string        { return uuid.UUID(v).String() }
func (v EscalationID) String() string  { return uuid.UUID(v).String() }
func (v BlockID) String() string       { return uuid.UUID(v).String() }

// The IDs marshal as canonical UUID strings in JSON and other text encodings.
func (v SubmissionID) MarshalText() ([]byte, error)  { return []byte(v.String()), nil }
func (v RequirementID) MarshalText() ([]byte, error) { return []byte(v.String()), nil }
func (v CaseID) MarshalText() ([]byte, error)        { return []byte(v.String()), nil }
func (v DocumentID) MarshalText() ([]byte, error)    { return []byte(v.String()), nil }
func (v UserID) MarshalText() ([]byte, error)        { return []byte(v.String()), nil }
func (v EscalationID) MarshalText() ([]byte, error)  { return []byte(v.String()), nil }
func (v BlockID) MarshalText() ([]byte, error)       { return []byte(v.String()), nil }

func (v *SubmissionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubmissionID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *RequirementID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequirementID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *CaseID) UnmarshalText(b []byte) error {
	parsed, err := ParseCaseID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *EscalationID) UnmarshalText(b []byte) error {
	parsed, err := ParseEscalationID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v SubmissionID) IsNil() bool  { return uuid.UUID(v) == uuid.Nil }
func (v RequirementID) IsNil() bool { return uuid.UUID(v) == uuid.Nil }
func (v CaseID) IsNil() bool        { return uuid.UUID(v) == uuid.Nil }
func (v DocumentID) IsNil() bool    { return uuid.UUID(v) == uuid.Nil }
func (v UserID) IsNil() bool        { return uuid.UUID(v) == uuid.Nil }
func (v EscalationID) IsNil() bool  { return uuid.UUID(v) == uuid.Nil }
func (v BlockID) IsNil() bool       { return uuid.UUID(v) == uuid.Nil }
