package models

import (
	"sort"
	"strings"

	dErrors "contactlink/pkg/domain-errors"
)

// maxAttributeLength bounds email and phone values accepted from callers. It
// is the longest address RFC 5321 allows; both values also become lock keys
// and index entries, so longer input is refused rather than stored.
const maxAttributeLength = 320

// IdentifyRequest carries the contact attributes of one identify call. A nil
// or blank attribute means "not supplied".
type IdentifyRequest struct {
	Email       *string
	PhoneNumber *string
}

// Normalized trims both attributes and turns blanks into nil.
func (r IdentifyRequest) Normalized() IdentifyRequest {
	return IdentifyRequest{
		Email:       trimmedOrNil(r.Email),
		PhoneNumber: trimmedOrNil(r.PhoneNumber),
	}
}

// Validate requires at least one attribute and rejects attributes longer than
// maxAttributeLength. Call it on a normalized request.
func (r IdentifyRequest) Validate() error {
	if r.Email == nil && r.PhoneNumber == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one of email or phoneNumber must be provided")
	}
	if r.Email != nil && len(*r.Email) > maxAttributeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "email is too long")
	}
	if r.PhoneNumber != nil && len(*r.PhoneNumber) > maxAttributeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "phoneNumber is too long")
	}
	return nil
}

// LockKeys returns the sorted identity keys a consolidation for this request
// must serialize on.
func (r IdentifyRequest) LockKeys() []string {
	keys := make([]string, 0, 2)
	if r.Email != nil {
		keys = append(keys, "email:"+*r.Email)
	}
	if r.PhoneNumber != nil {
		keys = append(keys, "phone:"+*r.PhoneNumber)
	}
	sort.Strings(keys)
	return keys
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
