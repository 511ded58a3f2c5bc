package handler

import (
	"bytes"
	"encoding/json"
	"errors"

	"contactlink/internal/identity/models"
)

// IdentifyRequest is the HTTP request body for POST /identify.
type IdentifyRequest struct {
	Email       *string        `json:"email"`
	PhoneNumber *flexibleValue `json:"phoneNumber"`

	// Populated by Validate
	parsed models.IdentifyRequest
}

// flexibleValue accepts a JSON string or number. Clients commonly send phone
// numbers as numbers.
type flexibleValue string

func (v *flexibleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.New("phoneNumber must be a string or a number")
		}
		*v = flexibleValue(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = flexibleValue(s)
	return nil
}

// Validate normalizes the attributes and requires at least one of them.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *IdentifyRequest) Validate() error {
	req := models.IdentifyRequest{Email: r.Email}
	if r.PhoneNumber != nil {
		phone := string(*r.PhoneNumber)
		req.PhoneNumber = &phone
	}
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return err
	}
	r.parsed = req
	return nil
}

// Parsed returns the normalized domain request.
func (r *IdentifyRequest) Parsed() models.IdentifyRequest {
	return r.parsed
}
