package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/MeKo-Tech/deteval/internal/server"
	"github.com/MeKo-Tech/deteval/internal/testutil"
	"github.com/cucumber/godog"
)

func (testCtx *TestContext) registerServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the evaluation server is running$`, testCtx.theEvaluationServerIsRunning)
	sc.Step(`^the evaluation server is running with a limit of (\d+) requests? per minute$`,
		testCtx.theEvaluationServerIsRunningWithRateLimit)
	sc.Step(`^I GET "([^"]+)"$`, testCtx.iGET)
	sc.Step(`^I POST the "([^"]+)" scenario to "([^"]+)"$`, testCtx.iPOSTTheScenario)
	sc.Step(`^I POST to "([^"]+)" with body:$`, testCtx.iPOSTWithBody)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response header "([^"]+)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]+)" should equal "([^"]*)"$`, testCtx.theResponseJSONFieldShouldEqual)
}

func (testCtx *TestContext) startServer(rl server.RateLimitConfig) error {
	s, err := server.NewServer(server.Config{
		CORSOrigin:   "*",
		MaxUploadMB:  1,
		TimeoutSec:   10,
		IoUThreshold: 0.3,
		Workers:      2,
		RateLimit:    rl,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
	}
	testCtx.HTTPServer = httptest.NewServer(s.Handler())
	return nil
}

func (testCtx *TestContext) theEvaluationServerIsRunning() error {
	return testCtx.startServer(server.RateLimitConfig{})
}

func (testCtx *TestContext) theEvaluationServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startServer(server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute})
}

func (testCtx *TestContext) do(method, path, body string) error {
	if testCtx.HTTPServer == nil {
		return errors.New("server is not running")
	}

	req, err := http.NewRequestWithContext(context.Background(), method, testCtx.HTTPServer.URL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := testCtx.HTTPServer.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(data)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	return testCtx.do(http.MethodGet, path, "")
}

func (testCtx *TestContext) iPOSTTheScenario(name, path string) error {
	s, err := testutil.ScenarioByName(name)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"iou_threshold": s.Threshold,
		"images":        s.Images,
	})
	if err != nil {
		return err
	}
	return testCtx.do(http.MethodPost, path, string(body))
}

func (testCtx *TestContext) iPOSTWithBody(path string, body *godog.DocString) error {
	return testCtx.do(http.MethodPost, path, body.Content)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("expected header %s %q, got %q", name, value, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseJSONFieldShouldEqual follows a dotted path through the JSON
// response and compares the printed value.
func (testCtx *TestContext) theResponseJSONFieldShouldEqual(field, want string) error {
	var current any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &current); err != nil {
		return fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}

	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot navigate into non-object at '%s'", part)
		}
		if current, ok = obj[part]; !ok {
			return fmt.Errorf("field '%s' not found in JSON", field)
		}
	}

	if got := fmt.Sprint(current); got != want {
		return fmt.Errorf("expected %s = %q, got %q", field, want, got)
	}
	return nil
}
