package models

import (
	"fmt"
	"sort"

	"contactlink/pkg/platform/orderedset"
)

// MatchStrategy selects how far the matcher looks beyond direct equality.
type MatchStrategy string

const (
	// MatchDirect selects only records sharing the requested email or phone.
	MatchDirect MatchStrategy = "direct"
	// MatchClosure extends the direct matches to their whole connected group:
	// records reachable through shared emails, shared phones or links.
	MatchClosure MatchStrategy = "closure"
)

// ParseMatchStrategy validates a configured strategy name.
func ParseMatchStrategy(s string) (MatchStrategy, error) {
	switch MatchStrategy(s) {
	case MatchDirect, MatchClosure:
		return MatchStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown match strategy %q", s)
	}
}

// MatchResult is the matcher output. EmailKnown and PhoneKnown always refer to
// directly matched records, whatever the strategy.
type MatchResult struct {
	Matched    []*Contact
	EmailKnown bool
	PhoneKnown bool
}

// Match selects the records whose email or phone number equals the request's.
// Soft-deleted records never match. Matched keeps snapshot order.
func Match(req IdentifyRequest, all []*Contact) MatchResult {
	var res MatchResult
	for _, c := range all {
		if c.IsDeleted() {
			continue
		}
		emailMatch := req.Email != nil && c.HasEmail(*req.Email)
		phoneMatch := req.PhoneNumber != nil && c.HasPhoneNumber(*req.PhoneNumber)
		if !emailMatch && !phoneMatch {
			continue
		}
		if emailMatch {
			res.EmailKnown = true
		}
		if phoneMatch {
			res.PhoneKnown = true
		}
		res.Matched = append(res.Matched, c)
	}
	return res
}

// MatchGroup runs Match and then pulls in every record connected to a direct
// match by a shared email, a shared phone number or a link in either direction.
func MatchGroup(req IdentifyRequest, all []*Contact) MatchResult {
	direct := Match(req, all)
	if len(direct.Matched) == 0 {
		return direct
	}

	idx := newContactIndex(all)
	visited := make(map[ContactID]bool, len(direct.Matched))
	queue := make([]*Contact, 0, len(direct.Matched))
	for _, c := range direct.Matched {
		visited[c.ID] = true
		queue = append(queue, c)
	}

	var group []*Contact
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		group = append(group, c)
		for _, n := range idx.neighbours(c) {
			if !visited[n.ID] {
				visited[n.ID] = true
				queue = append(queue, n)
			}
		}
	}

	return MatchResult{
		Matched:    group,
		EmailKnown: direct.EmailKnown,
		PhoneKnown: direct.PhoneKnown,
	}
}

// MatchWith dispatches on strategy; unknown strategies fall back to direct.
func MatchWith(strategy MatchStrategy, req IdentifyRequest, all []*Contact) MatchResult {
	if strategy == MatchClosure {
		return MatchGroup(req, all)
	}
	return Match(req, all)
}

// SortByAge sorts contacts oldest first, ties broken by id.
func SortByAge(contacts []*Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Before(contacts[j])
	})
}

// GroupLockKeys returns the sorted identity keys of the request and of every
// contact in group. Any other request that could read or rewrite one of those
// contacts must take at least one of these keys.
func GroupLockKeys(req IdentifyRequest, group []*Contact) []string {
	keys := orderedset.Of(req.LockKeys()...)
	for _, c := range group {
		for _, k := range (IdentifyRequest{Email: c.Email, PhoneNumber: c.PhoneNumber}).LockKeys() {
			keys.Add(k)
		}
	}
	out := keys.Values()
	sort.Strings(out)
	return out
}

type contactIndex struct {
	byEmail  map[string][]*Contact
	byPhone  map[string][]*Contact
	byID     map[ContactID]*Contact
	children map[ContactID][]*Contact
}

func newContactIndex(all []*Contact) *contactIndex {
	idx := &contactIndex{
		byEmail:  make(map[string][]*Contact),
		byPhone:  make(map[string][]*Contact),
		byID:     make(map[ContactID]*Contact, len(all)),
		children: make(map[ContactID][]*Contact),
	}
	for _, c := range all {
		if c.IsDeleted() {
			continue
		}
		idx.byID[c.ID] = c
		if c.Email != nil {
			idx.byEmail[*c.Email] = append(idx.byEmail[*c.Email], c)
		}
		if c.PhoneNumber != nil {
			idx.byPhone[*c.PhoneNumber] = append(idx.byPhone[*c.PhoneNumber], c)
		}
		if linked, ok := c.Link.LinkedID(); ok {
			idx.children[linked] = append(idx.children[linked], c)
		}
	}
	return idx
}

func (idx *contactIndex) neighbours(c *Contact) []*Contact {
	var out []*Contact
	if c.Email != nil {
		out = append(out, idx.byEmail[*c.Email]...)
	}
	if c.PhoneNumber != nil {
		out = append(out, idx.byPhone[*c.PhoneNumber]...)
	}
	if linked, ok := c.Link.LinkedID(); ok {
		if p, found := idx.byID[linked]; found {
			out = append(out, p)
		}
	}
	out = append(out, idx.children[c.ID]...)
	return out
}
