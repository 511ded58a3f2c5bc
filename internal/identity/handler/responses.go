package handler

import "contactlink/internal/identity/models"

// IdentifyResponse is the HTTP response for POST /identify.
type IdentifyResponse struct {
	Contact ContactResponse `json:"contact"`
}

// ContactResponse is the consolidated identity. PrimaryContactID is null when
// the matched contacts hold no primary.
type ContactResponse struct {
	PrimaryContactID    *int64   `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// FromView converts an identity view to its HTTP response. Arrays are never null.
func FromView(view *models.IdentityView) *IdentifyResponse {
	resp := ContactResponse{
		Emails:              append([]string{}, view.Emails...),
		PhoneNumbers:        append([]string{}, view.PhoneNumbers...),
		SecondaryContactIDs: make([]int64, 0, len(view.SecondaryContactIDs)),
	}
	if view.HasPrimary() {
		id := int64(view.PrimaryContactID)
		resp.PrimaryContactID = &id
	}
	for _, id := range view.SecondaryContactIDs {
		resp.SecondaryContactIDs = append(resp.SecondaryContactIDs, int64(id))
	}
	return &IdentifyResponse{Contact: resp}
}
