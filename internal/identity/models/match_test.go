package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func contact(id ContactID, email, phone string, link Link) *Contact {
	c := &Contact{ID: id, Link: link, CreatedAt: baseTime.Add(time.Duration(id) * time.Minute)}
	if email != "" {
		c.Email = strPtr(email)
	}
	if phone != "" {
		c.PhoneNumber = strPtr(phone)
	}
	c.UpdatedAt = c.CreatedAt
	return c
}

func ids(contacts []*Contact) []ContactID {
	out := make([]ContactID, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func TestMatch(t *testing.T) {
	all := []*Contact{
		contact(1, "lorraine@hillvalley.edu", "123456", PrimaryLink()),
		contact(2, "mcfly@hillvalley.edu", "123456", SecondaryLink(1)),
		contact(3, "biff@hillvalley.edu", "717171", PrimaryLink()),
		contact(4, "", "919191", PrimaryLink()),
	}

	t.Run("matches on email or phone", func(t *testing.T) {
		res := Match(IdentifyRequest{Email: strPtr("biff@hillvalley.edu"), PhoneNumber: strPtr("123456")}, all)
		assert.Equal(t, []ContactID{1, 2, 3}, ids(res.Matched))
		assert.True(t, res.EmailKnown)
		assert.True(t, res.PhoneKnown)
	})

	t.Run("absent attribute never matches null columns", func(t *testing.T) {
		res := Match(IdentifyRequest{PhoneNumber: strPtr("919191")}, all)
		assert.Equal(t, []ContactID{4}, ids(res.Matched))
		assert.False(t, res.EmailKnown)
		assert.True(t, res.PhoneKnown)
	})

	t.Run("no match", func(t *testing.T) {
		res := Match(IdentifyRequest{Email: strPtr("doc@hillvalley.edu")}, all)
		assert.Empty(t, res.Matched)
		assert.False(t, res.EmailKnown)
	})

	t.Run("skips deleted records", func(t *testing.T) {
		gone := contact(5, "doc@hillvalley.edu", "", PrimaryLink())
		gone.DeletedAt = &baseTime
		res := Match(IdentifyRequest{Email: strPtr("doc@hillvalley.edu")}, append(all, gone))
		assert.Empty(t, res.Matched)
	})
}

func TestMatchGroup(t *testing.T) {
	// 1 <- 2 share a phone; 3 shares only an email with 2; 4 is unrelated.
	all := []*Contact{
		contact(1, "a@x.com", "111", PrimaryLink()),
		contact(2, "b@x.com", "111", SecondaryLink(1)),
		contact(3, "b@x.com", "333", PrimaryLink()),
		contact(4, "d@x.com", "444", PrimaryLink()),
	}
	req := IdentifyRequest{Email: strPtr("a@x.com")}

	direct := Match(req, all)
	assert.Equal(t, []ContactID{1}, ids(direct.Matched))

	group := MatchGroup(req, all)
	matched := group.Matched
	SortByAge(matched)
	assert.Equal(t, []ContactID{1, 2, 3}, ids(matched))
	assert.True(t, group.EmailKnown)
	assert.False(t, group.PhoneKnown, "known flags come from direct matches")

	assert.Equal(t, ids(direct.Matched), ids(MatchWith(MatchDirect, req, all).Matched))
	assert.Len(t, MatchWith(MatchClosure, req, all).Matched, 3)
}

func TestParseMatchStrategy(t *testing.T) {
	s, err := ParseMatchStrategy("closure")
	require.NoError(t, err)
	assert.Equal(t, MatchClosure, s)

	_, err = ParseMatchStrategy("transitive")
	assert.Error(t, err)
}

func TestGroupLockKeys(t *testing.T) {
	group := []*Contact{
		contact(1, "a@x.com", "111", PrimaryLink()),
		contact(2, "", "222", PrimaryLink()),
	}
	keys := GroupLockKeys(IdentifyRequest{PhoneNumber: strPtr("111")}, group)
	assert.Equal(t, []string{"email:a@x.com", "phone:111", "phone:222"}, keys)
}
