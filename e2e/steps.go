package e2e

import (
	"github.com/cucumber/godog"

	"bobinator/e2e/steps/common"
	"bobinator/e2e/steps/registry"
	"bobinator/e2e/steps/verification"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	registry.RegisterSteps(ctx, tc)
	verification.RegisterSteps(ctx, tc)
}
