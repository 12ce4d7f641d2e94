package e2e

import (
	"github.com/cucumber/godog"

	"circulation/e2e/steps/auth"
	"circulation/e2e/steps/circulation"
	"circulation/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	circulation.RegisterSteps(ctx, tc)
}
