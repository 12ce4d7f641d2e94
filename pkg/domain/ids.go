package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "circulation/pkg/domain-errors"
)

// Typed identifiers keep book, member and transaction IDs from being mixed up
// at compile time. Construct them from external input with the Parse* functions;
// those reject empty, malformed and nil UUIDs.
type (
	BookID        uuid.UUID
	MemberID      uuid.UUID
	TransactionID uuid.UUID
)

func NewBookID() BookID               { return BookID(uuid.New()) }
func NewMemberID() MemberID           { return MemberID(uuid.New()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

func ParseBookID(s string) (BookID, error) {
	u, err := parseUUID(s, "book")
	return BookID(u), err
}

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member")
	return MemberID(u), err
}

func ParseTransactionID(s string) (TransactionID, error) {
	u, err := parseUUID(s, "transaction")
	return TransactionID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id must not be nil", kind)
	}
	return u, nil
}

func (id BookID) String() string        { return uuid.UUID(id).String() }
func (id MemberID) String() string      { return uuid.UUID(id).String() }
func (id TransactionID) String() string { return uuid.UUID(id).String() }

func (id BookID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TransactionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id BookID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id MemberID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id TransactionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *BookID) UnmarshalText(b []byte) error        { return unmarshalID((*uuid.UUID)(id), b) }
func (id *MemberID) UnmarshalText(b []byte) error      { return unmarshalID((*uuid.UUID)(id), b) }
func (id *TransactionID) UnmarshalText(b []byte) error { return unmarshalID((*uuid.UUID)(id), b) }

func unmarshalID(dst *uuid.UUID, b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid id")
	}
	*dst = u
	return nil
}

// Value and Scan let the typed IDs travel through database/sql and sqlx.

func (id BookID) Value() (driver.Value, error)        { return id.String(), nil }
func (id MemberID) Value() (driver.Value, error)      { return id.String(), nil }
func (id TransactionID) Value() (driver.Value, error) { return id.String(), nil }

func (id *BookID) Scan(src any) error        { return scanID((*uuid.UUID)(id), src) }
func (id *MemberID) Scan(src any) error      { return scanID((*uuid.UUID)(id), src) }
func (id *TransactionID) Scan(src any) error { return scanID((*uuid.UUID)(id), src) }

func scanID(dst *uuid.UUID, src any) error {
	switch v := src.(type) {
	case nil:
		*dst = uuid.Nil
		return nil
	case [16]byte:
		*dst = uuid.UUID(v)
		return nil
	default:
		var u uuid.UUID
		if err := u.Scan(v); err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		*dst = u
		return nil
	}
}
