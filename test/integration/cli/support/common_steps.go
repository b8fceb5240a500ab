package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/deteval/cmd/deteval/cmd"
	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/MeKo-Tech/deteval/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterSteps registers every step definition on sc.
func (testCtx *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	testCtx.registerAnnotationSteps(sc)
	testCtx.registerCommandSteps(sc)
	testCtx.registerSummarySteps(sc)
	testCtx.registerServerSteps(sc)
}

func (testCtx *TestContext) registerAnnotationSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the ground truth file "([^"]+)" contains:$`, testCtx.groundTruthFileContains)
	sc.Step(`^the prediction file "([^"]+)" contains:$`, testCtx.predictionFileContains)
	sc.Step(`^the ground truth file "([^"]+)" has no objects$`, testCtx.groundTruthFileIsEmpty)
	sc.Step(`^the prediction file "([^"]+)" has no objects$`, testCtx.predictionFileIsEmpty)
	sc.Step(`^the "([^"]+)" reference scenario$`, testCtx.theReferenceScenario)
	sc.Step(`^the config file "([^"]+)" contains:$`, testCtx.theConfigFileContains)
	sc.Step(`^the environment variable "([^"]+)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSet)
}

func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the file "([^"]+)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]+)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

func (testCtx *TestContext) registerSummarySteps(sc *godog.ScenarioContext) {
	sc.Step(`^the summary should report (\d+) true positives?, (\d+) false positives? and (\d+) false negatives?$`,
		testCtx.theSummaryShouldReport)
	sc.Step(`^the overall (precision|recall|F1 score) should be ([0-9.]+)$`, testCtx.theOverallMetricShouldBe)
	sc.Step(`^the summary should list the classes "([^"]*)"$`, testCtx.theSummaryShouldListClasses)
	sc.Step(`^the summary should cover (\d+) files?$`, testCtx.theSummaryShouldCoverFiles)
}

func (testCtx *TestContext) writeAnnotation(dir, name string, objects []testutil.Object) error {
	content := testutil.VOC(strings.TrimSuffix(name, ".xml")+".jpg", objects...)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// objectsFromTable reads rows of label, xmin, ymin, xmax, ymax.
func objectsFromTable(t *godog.Table) ([]testutil.Object, error) {
	if len(t.Rows) == 0 {
		return nil, nil
	}
	var objects []testutil.Object
	for _, row := range t.Rows[1:] {
		if len(row.Cells) != 5 {
			return nil, fmt.Errorf("expected 5 columns, got %d", len(row.Cells))
		}
		var coords [4]int
		for i := range coords {
			v, err := strconv.Atoi(strings.TrimSpace(row.Cells[i+1].Value))
			if err != nil {
				return nil, fmt.Errorf("invalid coordinate %q: %w", row.Cells[i+1].Value, err)
			}
			coords[i] = v
		}
		objects = append(objects, testutil.Obj(row.Cells[0].Value, coords[0], coords[1], coords[2], coords[3]))
	}
	return objects, nil
}

func (testCtx *TestContext) groundTruthFileContains(name string, t *godog.Table) error {
	objects, err := objectsFromTable(t)
	if err != nil {
		return err
	}
	return testCtx.writeAnnotation(testCtx.GTDir, name, objects)
}

func (testCtx *TestContext) predictionFileContains(name string, t *godog.Table) error {
	objects, err := objectsFromTable(t)
	if err != nil {
		return err
	}
	return testCtx.writeAnnotation(testCtx.PredDir, name, objects)
}

func (testCtx *TestContext) groundTruthFileIsEmpty(name string) error {
	return testCtx.writeAnnotation(testCtx.GTDir, name, nil)
}

func (testCtx *TestContext) predictionFileIsEmpty(name string) error {
	return testCtx.writeAnnotation(testCtx.PredDir, name, nil)
}

// theReferenceScenario writes one of the shared fixture scenarios and
// exposes its threshold as ${THRESHOLD}.
func (testCtx *TestContext) theReferenceScenario(name string) error {
	s, err := testutil.ScenarioByName(name)
	if err != nil {
		return err
	}
	for _, img := range s.Images {
		if err := testCtx.writeAnnotation(testCtx.GTDir, img.File, img.GroundTruth); err != nil {
			return err
		}
		if err := testCtx.writeAnnotation(testCtx.PredDir, img.File, img.Predictions); err != nil {
			return err
		}
	}
	testCtx.Variables["THRESHOLD"] = strconv.FormatFloat(s.Threshold, 'f', -1, 64)
	return nil
}

func (testCtx *TestContext) theConfigFileContains(name string, content *godog.DocString) error {
	path := filepath.Join(testCtx.TempDir, name)
	return os.WriteFile(path, []byte(content.Content), 0o600)
}

func (testCtx *TestContext) theEnvironmentVariableIsSet(name, value string) error {
	testCtx.SetEnv(name, value)
	return nil
}

// iRunCommand runs a deteval command line in process.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.Substitute(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] == "deteval" {
		parts = parts[1:]
	}

	root := cmd.GetRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(parts)

	testCtx.LastError = root.ExecuteContext(context.Background())
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nOutput: %s", testCtx.LastCommand, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expected, testCtx.LastOutput)
	}
	return nil
}

// theErrorShouldMention matches case-insensitively against the returned error.
func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", text)
	}
	msg := testCtx.LastError.Error()
	if !strings.Contains(strings.ToLower(msg), strings.ToLower(text)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", text, msg)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(path string) error {
	path = testCtx.Substitute(path)
	if !testutil.FileExists(path) {
		return fmt.Errorf("file %s does not exist", path)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(path, expected string) error {
	path = testCtx.Substitute(path)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path inside the test workspace
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain '%s'\nContent: %s", path, expected, data)
	}
	return nil
}

func (testCtx *TestContext) summary() (*evaluation.Summary, error) {
	var s evaluation.Summary
	if err := json.Unmarshal([]byte(testCtx.LastOutput), &s); err != nil {
		return nil, fmt.Errorf("output is not a JSON summary: %w\nOutput: %s", err, testCtx.LastOutput)
	}
	return &s, nil
}

func (testCtx *TestContext) theSummaryShouldReport(tp, fp, fn int) error {
	s, err := testCtx.summary()
	if err != nil {
		return err
	}
	got := evaluation.Counts{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}
	if s.Overall.Counts != got {
		return fmt.Errorf("expected %+v, got %+v", got, s.Overall.Counts)
	}
	return nil
}

func (testCtx *TestContext) theOverallMetricShouldBe(metric string, want float64) error {
	s, err := testCtx.summary()
	if err != nil {
		return err
	}
	var got float64
	switch metric {
	case "precision":
		got = s.Overall.Precision
	case "recall":
		got = s.Overall.Recall
	default:
		got = s.Overall.F1
	}
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("expected overall %s %v, got %v", metric, want, got)
	}
	return nil
}

// theSummaryShouldListClasses compares the reported class rows in order
// against a comma-separated list.
func (testCtx *TestContext) theSummaryShouldListClasses(list string) error {
	s, err := testCtx.summary()
	if err != nil {
		return err
	}
	var want []string
	if list != "" {
		want = strings.Split(list, ",")
	}
	got := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		got[i] = c.Class
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("expected classes %v, got %v", want, got)
	}
	return nil
}

func (testCtx *TestContext) theSummaryShouldCoverFiles(want int) error {
	s, err := testCtx.summary()
	if err != nil {
		return err
	}
	if s.Files != want {
		return fmt.Errorf("expected %d files, got %d", want, s.Files)
	}
	return nil
}
