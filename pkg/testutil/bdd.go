package testutil

import "testing"

// Scenario groups Given/When/Then steps under one subtest named after the
// behavior being described.
func Scenario(t *testing.T, name string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(name, fn)
}

// Given, When, Then and And label the steps of a scenario. Steps run in order
// as subtests. A failed step does not stop later ones, so steps that later
// steps depend on should fail with require. Each returns whether its step
// passed.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("Then "+desc, fn)
}

func And(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run("And "+desc, fn)
}
