package registry

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	ResponseJSON() (map[string]interface{}, error)
	SetRegistryLicense(number, name, status, expires string)
	SetRegistryDown(down bool)
	RegistryCalls() int
}

// RegisterSteps registers registry-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^the VA registry lists license "([^"]*)" for "([^"]*)" as "([^"]*)" expiring "([^"]*)"$`, steps.listLicense)
	ctx.Step(`^the VA registry is unavailable$`, steps.registryDown)

	ctx.Step(`^I look up license "([^"]*)" in "([^"]*)"$`, steps.lookupLicense)
	ctx.Step(`^I search "([^"]*)" for "([^"]*)"$`, steps.search)
	ctx.Step(`^I note the registry call count$`, steps.noteCalls)
	ctx.Step(`^the registry should not have been called again$`, steps.noNewCalls)
	ctx.Step(`^the search should return (\d+) results?$`, steps.searchResultCount)
}

type registrySteps struct {
	tc         TestContext
	notedCalls int
}

func (s *registrySteps) listLicense(ctx context.Context, number, name, status, expires string) error {
	s.tc.SetRegistryLicense(number, name, status, expires)
	return nil
}

func (s *registrySteps) registryDown(ctx context.Context) error {
	s.tc.SetRegistryDown(true)
	return nil
}

func (s *registrySteps) lookupLicense(ctx context.Context, number, jurisdiction string) error {
	return s.tc.GET("/registry/" + url.PathEscape(jurisdiction) + "/licenses/" + url.PathEscape(number))
}

func (s *registrySteps) search(ctx context.Context, jurisdiction, query string) error {
	return s.tc.GET("/registry/" + url.PathEscape(jurisdiction) + "/search?q=" + url.QueryEscape(query))
}

func (s *registrySteps) noteCalls(ctx context.Context) error {
	s.notedCalls = s.tc.RegistryCalls()
	return nil
}

func (s *registrySteps) noNewCalls(ctx context.Context) error {
	if calls := s.tc.RegistryCalls(); calls != s.notedCalls {
		return fmt.Errorf("expected %d registry calls but got %d", s.notedCalls, calls)
	}
	return nil
}

func (s *registrySteps) searchResultCount(ctx context.Context, want int) error {
	data, err := s.tc.ResponseJSON()
	if err != nil {
		return err
	}
	results, ok := data["results"].([]interface{})
	if !ok {
		return fmt.Errorf("response has no results array")
	}
	if len(results) != want {
		return fmt.Errorf("expected %d results but got %d", want, len(results))
	}
	return nil
}
