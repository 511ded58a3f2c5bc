package e2e

import (
	"github.com/cucumber/godog"

	"contactlink/e2e/steps/common"
	"contactlink/e2e/steps/identity"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// Identify calls and identity assertions
	identity.RegisterSteps(ctx, tc)
}
