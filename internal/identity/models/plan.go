package models

import "time"

// Plan is the consolidation decision for one identify call, computed before
// any write. Applying it is the service's job.
type Plan struct {
	// Group is the matched set sorted oldest first.
	Group []*Contact
	// Primary is the surviving primary found in Group, or nil when Group
	// holds no primary.
	Primary *Contact
	// Insert is the record to create, or nil when the request adds nothing new.
	Insert *NewContact
	// Demote lists the surplus primaries in Group, oldest first, to be
	// rewritten as secondaries of Primary.
	Demote []ContactID
	// Inconsistent is set when Group is non-empty but contains no primary.
	Inconsistent bool
}

// PlanConsolidation decides what an identify call must write.
//
// The oldest primary in the matched set survives. A record is inserted when
// the request carries an email or phone number no matched record has; it is a
// secondary of the surviving primary, or a new primary when there is none.
// Every other primary in the matched set is demoted to the survivor.
//
// Demotion runs whether or not a record is inserted, not only on calls that
// write nothing new. A request that brings a new attribute while bridging two
// primaries therefore merges them too, and no call leaves a group with two
// primaries.
func PlanConsolidation(req IdentifyRequest, m MatchResult, now time.Time) Plan {
	group := make([]*Contact, len(m.Matched))
	copy(group, m.Matched)
	SortByAge(group)

	plan := Plan{Group: group}
	for _, c := range group {
		if !c.IsPrimary() {
			continue
		}
		if plan.Primary == nil {
			plan.Primary = c
			continue
		}
		plan.Demote = append(plan.Demote, c.ID)
	}
	plan.Inconsistent = len(group) > 0 && plan.Primary == nil

	emailIsNew := req.Email != nil && !m.EmailKnown
	phoneIsNew := req.PhoneNumber != nil && !m.PhoneKnown
	if emailIsNew || phoneIsNew {
		link := PrimaryLink()
		if plan.Primary != nil {
			link = SecondaryLink(plan.Primary.ID)
		}
		plan.Insert = &NewContact{
			Email:       cloneString(req.Email),
			PhoneNumber: cloneString(req.PhoneNumber),
			Link:        link,
			CreatedAt:   now,
		}
	}
	return plan
}

// Writes reports whether applying the plan touches the store.
func (p Plan) Writes() bool {
	return p.Insert != nil || len(p.Demote) > 0
}

// PrimaryID returns the surviving primary's id, or zero when there is none.
func (p Plan) PrimaryID() ContactID {
	if p.Primary == nil {
		return 0
	}
	return p.Primary.ID
}
