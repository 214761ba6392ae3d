package verification

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"bobinator/e2e/steps/common"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string) error
	ResponseJSON() (map[string]interface{}, error)
	SeedDemoProviders(ctx context.Context) error
	ProviderID(ctx context.Context, email string) (string, error)
	SetCredentialExpiry(ctx context.Context, email, credential, expires string) error
}

// RegisterSteps registers verification and re-verification step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^the demo providers are seeded$`, steps.seed)
	ctx.Step(`^provider "([^"]*)" has (insurance|bond) expiring "([^"]*)"$`, steps.setExpiry)

	ctx.Step(`^I verify provider "([^"]*)"$`, steps.verifyProvider)
	ctx.Step(`^I verify the "([^"]*)" credential of provider "([^"]*)"$`, steps.verifyCredential)
	ctx.Step(`^I request the verification history of "([^"]*)"$`, steps.history)
	ctx.Step(`^I run a full re-verification$`, steps.verifyAll)

	ctx.Step(`^the "([^"]*)" check should succeed$`, steps.checkShouldSucceed)
	ctx.Step(`^the "([^"]*)" check should fail with "([^"]*)"$`, steps.checkShouldFailWith)
	ctx.Step(`^the "([^"]*)" check should report "([^"]*)"$`, steps.checkShouldReport)
	ctx.Step(`^the history should have (\d+) entr(?:y|ies)$`, steps.historyCount)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) seed(ctx context.Context) error {
	return s.tc.SeedDemoProviders(ctx)
}

func (s *verificationSteps) setExpiry(ctx context.Context, email, credential, expires string) error {
	return s.tc.SetCredentialExpiry(ctx, email, credential, expires)
}

func (s *verificationSteps) verifyProvider(ctx context.Context, email string) error {
	providerID, err := s.tc.ProviderID(ctx, email)
	if err != nil {
		return err
	}
	return s.tc.POST("/providers/"+providerID+"/verify", nil)
}

func (s *verificationSteps) verifyCredential(ctx context.Context, credential, email string) error {
	providerID, err := s.tc.ProviderID(ctx, email)
	if err != nil {
		return err
	}
	return s.tc.POST("/providers/"+providerID+"/verify/"+credential, nil)
}

func (s *verificationSteps) history(ctx context.Context, email string) error {
	providerID, err := s.tc.ProviderID(ctx, email)
	if err != nil {
		return err
	}
	return s.tc.GET("/providers/" + providerID + "/verifications")
}

func (s *verificationSteps) verifyAll(ctx context.Context) error {
	return s.tc.POST("/admin/verify-all", nil)
}

func (s *verificationSteps) check(credential string) (map[string]interface{}, error) {
	data, err := s.tc.ResponseJSON()
	if err != nil {
		return nil, err
	}
	v, err := common.Lookup(data, credential)
	if err != nil {
		return nil, err
	}
	check, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s check is missing from the response", credential)
	}
	return check, nil
}

func (s *verificationSteps) checkShouldSucceed(ctx context.Context, credential string) error {
	check, err := s.check(credential)
	if err != nil {
		return err
	}
	if check["success"] != true {
		return fmt.Errorf("%s check did not succeed: %v", credential, check["error"])
	}
	return nil
}

func (s *verificationSteps) checkShouldFailWith(ctx context.Context, credential, message string) error {
	check, err := s.check(credential)
	if err != nil {
		return err
	}
	if check["success"] != false {
		return fmt.Errorf("%s check succeeded, expected failure", credential)
	}
	if fmt.Sprint(check["error"]) != message {
		return fmt.Errorf("%s check error: expected %q but got %q", credential, message, check["error"])
	}
	return nil
}

func (s *verificationSteps) checkShouldReport(ctx context.Context, credential, result string) error {
	check, err := s.check(credential)
	if err != nil {
		return err
	}
	if fmt.Sprint(check["result"]) != result {
		return fmt.Errorf("%s check: expected result %s but got %v", credential, result, check["result"])
	}
	return nil
}

func (s *verificationSteps) historyCount(ctx context.Context, want int) error {
	data, err := s.tc.ResponseJSON()
	if err != nil {
		return err
	}
	entries, ok := data["entries"].([]interface{})
	if !ok {
		return fmt.Errorf("response has no entries array")
	}
	if len(entries) != want {
		return fmt.Errorf("expected %d history entries but got %d", want, len(entries))
	}
	return nil
}
