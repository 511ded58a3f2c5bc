package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	Expand(s string) string
	Remember(alias string, v any)
	Recall(alias string) (any, bool)
}

// RegisterSteps registers identify step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &identitySteps{tc: tc}

	ctx.Step(`^I identify with email "([^"]*)" and phone "([^"]*)"$`, steps.identifyWithBoth)
	ctx.Step(`^I identify with email "([^"]*)"$`, steps.identifyWithEmail)
	ctx.Step(`^I identify with phone "([^"]*)"$`, steps.identifyWithPhone)
	ctx.Step(`^I identify with numeric phone "([^"]*)"$`, steps.identifyWithNumericPhone)
	ctx.Step(`^I remember the primary contact as "([^"]*)"$`, steps.rememberPrimary)

	ctx.Step(`^the primary contact should be "([^"]*)"$`, steps.primaryShouldBe)
	ctx.Step(`^the primary contact should not be "([^"]*)"$`, steps.primaryShouldNotBe)
	ctx.Step(`^the emails should be "([^"]*)"$`, steps.emailsShouldBe)
	ctx.Step(`^the phone numbers should be "([^"]*)"$`, steps.phonesShouldBe)
	ctx.Step(`^there should be (\d+) secondary contacts?$`, steps.secondaryCountShouldBe)
}

type identitySteps struct {
	tc TestContext
}

func (s *identitySteps) identify(body map[string]any) error {
	if err := s.tc.POST("/identify", body); err != nil {
		return err
	}
	if status := s.tc.GetLastStatusCode(); status != 200 {
		return fmt.Errorf("identify returned %d: %s", status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *identitySteps) identifyWithBoth(ctx context.Context, email, phone string) error {
	return s.identify(map[string]any{"email": s.tc.Expand(email), "phoneNumber": s.tc.Expand(phone)})
}

func (s *identitySteps) identifyWithEmail(ctx context.Context, email string) error {
	return s.identify(map[string]any{"email": s.tc.Expand(email), "phoneNumber": nil})
}

func (s *identitySteps) identifyWithPhone(ctx context.Context, phone string) error {
	return s.identify(map[string]any{"email": nil, "phoneNumber": s.tc.Expand(phone)})
}

// identifyWithNumericPhone sends the phone as a JSON number, the way older
// clients do.
func (s *identitySteps) identifyWithNumericPhone(ctx context.Context, phone string) error {
	n, err := strconv.ParseInt(s.tc.Expand(phone), 10, 64)
	if err != nil {
		return fmt.Errorf("phone %q is not numeric: %w", phone, err)
	}
	return s.identify(map[string]any{"phoneNumber": n})
}

func (s *identitySteps) primary() (any, error) {
	v, err := s.tc.GetResponseField("contact.primaryContactId")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("response has no primary contact: %s", s.tc.GetLastResponseBody())
	}
	return v, nil
}

func (s *identitySteps) rememberPrimary(ctx context.Context, alias string) error {
	v, err := s.primary()
	if err != nil {
		return err
	}
	s.tc.Remember(alias, v)
	return nil
}

func (s *identitySteps) primaryShouldBe(ctx context.Context, alias string) error {
	want, ok := s.tc.Recall(alias)
	if !ok {
		return fmt.Errorf("no contact remembered as %q", alias)
	}
	got, err := s.primary()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected primary %v (%s), got %v", want, alias, got)
	}
	return nil
}

func (s *identitySteps) primaryShouldNotBe(ctx context.Context, alias string) error {
	if err := s.primaryShouldBe(ctx, alias); err == nil {
		return fmt.Errorf("expected primary to differ from %q", alias)
	}
	return nil
}

func (s *identitySteps) emailsShouldBe(ctx context.Context, list string) error {
	return s.listShouldBe("contact.emails", list)
}

func (s *identitySteps) phonesShouldBe(ctx context.Context, list string) error {
	return s.listShouldBe("contact.phoneNumbers", list)
}

// listShouldBe compares a response array with a comma-separated list, in order.
func (s *identitySteps) listShouldBe(field, list string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%s is not an array: %v", field, v)
	}
	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, fmt.Sprint(item))
	}
	var want []string
	for _, w := range strings.Split(s.tc.Expand(list), ",") {
		if w = strings.TrimSpace(w); w != "" {
			want = append(want, w)
		}
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected %s to be %v, got %v", field, want, got)
	}
	return nil
}

func (s *identitySteps) secondaryCountShouldBe(ctx context.Context, n int) error {
	v, err := s.tc.GetResponseField("contact.secondaryContactIds")
	if err != nil {
		return err
	}
	items, ok := v.([]any)
	if !ok {
		return fmt.Errorf("secondaryContactIds is not an array: %v", v)
	}
	if len(items) != n {
		return fmt.Errorf("expected %d secondary contacts, got %d", n, len(items))
	}
	return nil
}
