// Package records holds the business records collected by the intake flows.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind selects one of the two record tables.
type Kind string

const (
	// KindOrder is a customer order: task description plus contacts.
	KindOrder Kind = "order"
	// KindTest is a test registration: channel link plus contacts.
	KindTest Kind = "test"
)

// Valid reports whether k names a known record kind.
func (k Kind) Valid() bool {
	return k == KindOrder || k == KindTest
}

// Record is one submission of a user.
type Record struct {
	ID       int64
	UserID   int64
	Name     string
	Username string
	// Text is the task description of an order or the channel link of a test registration.
	Text      string
	Contacts  string
	CreatedAt time.Time
}

// Field names an updatable column of a record.
type Field string

const (
	FieldText     Field = "text"
	FieldContacts Field = "contacts"
)

// Change is one field assignment of a Patch.
type Change struct {
	Field Field
	Value string
}

// Patch is an ordered set of field assignments. Fields that are not listed
// stay untouched.
type Patch []Change

// Set returns a copy of p with the field assigned; a later assignment of the
// same field replaces the earlier one.
func (p Patch) Set(f Field, v string) Patch {
	out := make(Patch, 0, len(p)+1)
	for _, c := range p {
		if c.Field != f {
			out = append(out, c)
		}
	}
	return append(out, Change{Field: f, Value: v})
}

// Validate rejects unknown fields.
func (p Patch) Validate() error {
	for _, c := range p {
		switch c.Field {
		case FieldText, FieldContacts:
		default:
			return fmt.Errorf("records: unknown field %q", c.Field)
		}
	}
	return nil
}

// Apply assigns the patch to r in place.
func (p Patch) Apply(r *Record) {
	for _, c := range p {
		switch c.Field {
		case FieldText:
			r.Text = c.Value
		case FieldContacts:
			r.Contacts = c.Value
		}
	}
}

// ErrNotFound is returned when the user has no record of the requested kind.
var ErrNotFound = errors.New("records: not found")

// Store persists records. "The user's record" is always the most recent one
// by creation time, then id.
type Store interface {
	Create(ctx context.Context, kind Kind, rec Record) (int64, error)
	Latest(ctx context.Context, kind Kind, userID int64) (Record, error)
	// UpdateLatest applies the patch to the user's latest record and returns it.
	UpdateLatest(ctx context.Context, kind Kind, userID int64, patch Patch) (Record, error)
}
