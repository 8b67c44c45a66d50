package cli

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against a fresh server each.

Every scenario drives the host interface step by step (subscribe, update,
refresh, heartbeat, terminate, release), checks the expectations written
in its steps and assertions, and compares the resulting trace with
golden/<name>.golden next to the scenario file when one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rtd test ./scenarios
  rtd test ./scenarios --filter "overflow*"
  rtd test ./scenarios --update
  rtd test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(scenariosDir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	r := scenarioRunner{update: opts.Update, text: !out.JSON(), w: out.Writer}
	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files))}
	for _, path := range files {
		sr := r.run(path)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = len(result.Scenarios)

	switch {
	case out.JSON():
		return outputTestJSON(out, result)
	case result.Total == 0:
		fmt.Fprintln(out.Writer, "No scenarios found.")
		return nil
	default:
		return outputTestText(out, result)
	}
}

// findScenarioFiles returns the .yaml and .yml files under dir in lexical
// order. A non-empty filter is a glob matched against the file name
// without its extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// scenarioRunner runs one scenario file at a time and reports each result
// as it finishes when output is text.
type scenarioRunner struct {
	update bool
	text   bool
	w      io.Writer
}

func (r scenarioRunner) run(path string) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return r.report(name, "", "failed to load scenario: "+err.Error())
	}
	name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		return r.report(name, "", "execution failed: "+err.Error())
	}

	note := ""
	var problems []string
	golden := goldenFilePath(path)
	switch {
	case r.update:
		if err := writeGolden(golden, scenario, result); err != nil {
			problems = append(problems, "failed to update golden file: "+err.Error())
		} else {
			note = " (golden updated)"
		}
	case fileExists(golden):
		same, err := matchesGolden(golden, scenario, result)
		switch {
		case err != nil:
			problems = append(problems, "golden comparison failed: "+err.Error())
		case !same:
			problems = append(problems, "trace does not match golden file (run with --update to regenerate)")
		}
	}
	if !result.Pass {
		problems = append(problems, result.Errors...)
	}
	return r.report(name, note, problems...)
}

// report prints one result line (and its problems) for text output.
func (r scenarioRunner) report(name, note string, problems ...string) ScenarioResult {
	sr := ScenarioResult{Name: name, Pass: len(problems) == 0, Errors: problems}
	if !r.text {
		return sr
	}
	if sr.Pass {
		fmt.Fprintf(r.w, "\u2713 %s%s\n", name, note)
		return sr
	}
	fmt.Fprintf(r.w, "\u2717 %s\n", name)
	for _, p := range problems {
		fmt.Fprintf(r.w, "  %s\n", p)
	}
	return sr
}

// goldenFilePath is golden/<name>.golden next to the scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeGolden(path string, scenario *harness.Scenario, result *harness.Result) error {
	data, err := harness.Snapshot(scenario, result)
	if err != nil {
		return fmt.Errorf("snapshot trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func matchesGolden(path string, scenario *harness.Scenario, result *harness.Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	got, err := harness.Snapshot(scenario, result)
	if err != nil {
		return false, fmt.Errorf("snapshot trace: %w", err)
	}
	return bytes.Equal(want, got), nil
}

func outputTestJSON(out *OutputFormatter, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := out.Respond(resp); err != nil {
		return err
	}
	return scenarioFailures(result)
}

func outputTestText(out *OutputFormatter, result TestResult) error {
	fmt.Fprintf(out.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := scenarioFailures(result); err != nil {
		return err
	}
	fmt.Fprintln(out.Writer, "\u2713 All scenarios passed")
	return nil
}

// scenarioFailures returns an ExitFailure error when any scenario failed.
func scenarioFailures(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
}
