package models

import "contactlink/pkg/platform/orderedset"

// IdentityView is the consolidated identity returned by an identify call.
// PrimaryContactID is zero when the matched group holds no primary and the
// call created nothing.
type IdentityView struct {
	PrimaryContactID    ContactID
	Emails              []string
	PhoneNumbers        []string
	SecondaryContactIDs []ContactID
}

// HasPrimary reports whether the view names a primary contact.
func (v *IdentityView) HasPrimary() bool {
	return v.PrimaryContactID != 0
}

// BuildView assembles the view of an applied plan. inserted is the record the
// store created for plan.Insert, or nil.
//
// Attribute order: the primary's own email and phone number first, then the
// group oldest first, then the inserted record. Secondary ids follow the
// group order with the inserted secondary last; demoted records appear in
// their group position.
func BuildView(plan Plan, inserted *Contact) IdentityView {
	primary := plan.Primary
	if primary == nil && inserted != nil && inserted.IsPrimary() {
		primary = inserted
	}

	emails := orderedset.Of[string]()
	phones := orderedset.Of[string]()
	secondaries := orderedset.Of[ContactID]()

	if primary != nil {
		orderedset.AddNonEmpty(emails, primary.Email)
		orderedset.AddNonEmpty(phones, primary.PhoneNumber)
	}
	for _, c := range plan.Group {
		orderedset.AddNonEmpty(emails, c.Email)
		orderedset.AddNonEmpty(phones, c.PhoneNumber)
		if primary != nil && c.ID == primary.ID {
			continue
		}
		secondaries.Add(c.ID)
	}
	if inserted != nil {
		orderedset.AddNonEmpty(emails, inserted.Email)
		orderedset.AddNonEmpty(phones, inserted.PhoneNumber)
		if !inserted.IsPrimary() {
			secondaries.Add(inserted.ID)
		}
	}

	view := IdentityView{
		Emails:              emails.Values(),
		PhoneNumbers:        phones.Values(),
		SecondaryContactIDs: secondaries.Values(),
	}
	if primary != nil {
		view.PrimaryContactID = primary.ID
	}
	return view
}
