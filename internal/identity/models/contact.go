package models

import (
	"fmt"
	"strconv"
	"time"

	dErrors "contactlink/pkg/domain-errors"
)

// ContactID is the store-assigned identifier of a contact record. Stored ids
// are always positive.
type ContactID int64

func (id ContactID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// LinkPrecedence is the persisted form of a Link.
type LinkPrecedence string

const (
	PrecedencePrimary   LinkPrecedence = "primary"
	PrecedenceSecondary LinkPrecedence = "secondary"
)

// Link says whether a contact is the primary of its identity or a secondary
// pointing at that primary. The zero value is a primary link; a secondary link
// always carries the primary's id.
type Link struct {
	linkedID ContactID
}

// PrimaryLink marks a contact as the canonical record of its identity.
func PrimaryLink() Link {
	return Link{}
}

// SecondaryLink subsumes a contact into the identity whose primary is primary.
func SecondaryLink(primary ContactID) Link {
	return Link{linkedID: primary}
}

// NewLink rebuilds a Link from its persisted columns, rejecting rows that
// break the primary/secondary shape.
func NewLink(precedence LinkPrecedence, linkedID *int64) (Link, error) {
	switch precedence {
	case PrecedencePrimary:
		if linkedID != nil {
			return Link{}, dErrors.New(dErrors.CodeInvariantViolation, "primary contact must not have a linked id")
		}
		return PrimaryLink(), nil
	case PrecedenceSecondary:
		if linkedID == nil || *linkedID <= 0 {
			return Link{}, dErrors.New(dErrors.CodeInvariantViolation, "secondary contact requires a linked id")
		}
		return SecondaryLink(ContactID(*linkedID)), nil
	default:
		return Link{}, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown link precedence %q", precedence))
	}
}

func (l Link) IsPrimary() bool   { return l.linkedID == 0 }
func (l Link) IsSecondary() bool { return l.linkedID != 0 }

// LinkedID returns the primary a secondary points at. ok is false for primaries.
func (l Link) LinkedID() (ContactID, bool) {
	return l.linkedID, l.linkedID != 0
}

// Precedence returns the persisted precedence value.
func (l Link) Precedence() LinkPrecedence {
	if l.IsPrimary() {
		return PrecedencePrimary
	}
	return PrecedenceSecondary
}

// LinkedIDValue returns the linked id as a nullable column value.
func (l Link) LinkedIDValue() *int64 {
	if l.IsPrimary() {
		return nil
	}
	v := int64(l.linkedID)
	return &v
}

func (l Link) String() string {
	if l.IsPrimary() {
		return string(PrecedencePrimary)
	}
	return string(PrecedenceSecondary) + "->" + l.linkedID.String()
}

// Contact is one submission of contact attributes. Records are created once
// and only ever mutated from primary to secondary or re-pointed to a new primary.
type Contact struct {
	ID          ContactID
	Email       *string
	PhoneNumber *string
	Link        Link
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (c *Contact) IsPrimary() bool {
	return c.Link.IsPrimary()
}

// HasEmail reports whether the contact carries exactly email.
func (c *Contact) HasEmail(email string) bool {
	return c.Email != nil && *c.Email == email
}

// HasPhoneNumber reports whether the contact carries exactly phone.
func (c *Contact) HasPhoneNumber(phone string) bool {
	return c.PhoneNumber != nil && *c.PhoneNumber == phone
}

// IsDeleted reports whether the row carries a soft-delete marker.
func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// Clone returns a deep copy so stores can hand out records without aliasing.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	out := *c
	out.Email = cloneString(c.Email)
	out.PhoneNumber = cloneString(c.PhoneNumber)
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// Before orders contacts by creation time, breaking ties by id.
func (c *Contact) Before(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// NewContact is the input of a store insert. The store assigns the id.
type NewContact struct {
	Email       *string
	PhoneNumber *string
	Link        Link
	CreatedAt   time.Time
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
