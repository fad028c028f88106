package e2e

import (
	"github.com/cucumber/godog"

	"feria/e2e/steps/common"
	"feria/e2e/steps/registration"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (service health, generic status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register registration-specific steps
	registration.RegisterSteps(ctx, tc)
}
