package cli_test

import (
	"context"
	"os"
	"testing"

	"github.com/MeKo-Tech/deteval/test/integration/cli/support"
	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

// TestFeatures runs every scenario under features/ against the deteval
// command tree in-process. GODOG_FORMAT and GODOG_TAGS narrow a run.
func TestFeatures(t *testing.T) {
	opts := godog.Options{
		Format:   envOr("GODOG_FORMAT", "pretty"),
		Tags:     os.Getenv("GODOG_TAGS"),
		Paths:    []string{"features"},
		Output:   colors.Colored(os.Stdout),
		TestingT: t,
		Strict:   true,
	}

	suite := godog.TestSuite{
		Name:                "deteval",
		ScenarioInitializer: initializeScenario(t),
		Options:             &opts,
	}
	if status := suite.Run(); status != 0 {
		t.Fatalf("feature suite failed with status %d", status)
	}
}

// initializeScenario gives every scenario a fresh working directory,
// environment and server.
func initializeScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(sc *godog.ScenarioContext) {
		tc, err := support.NewTestContext()
		if err != nil {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				return ctx, err
			})
			return
		}

		tc.RegisterSteps(sc)
		sc.After(func(ctx context.Context, s *godog.Scenario, _ error) (context.Context, error) {
			if err := tc.Cleanup(); err != nil {
				t.Logf("cleanup of %q: %v", s.Name, err)
			}
			return ctx, nil
		})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
