// Package preflight runs the two checks a workflow run must pass before
// the Runner can start: the specification file (when the template
// requires one) and the onboarding needs derived from the persisted run
// index.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cortexforge/agentflow/internal/logging"
	"github.com/cortexforge/agentflow/internal/workflow"
)

// DefaultSpecEnvVar names the environment variable a caller may set to
// override the specification file path.
const DefaultSpecEnvVar = "CODEMACHINE_SPEC_PATH"

// DefaultSpecPath is used when DefaultSpecEnvVar is unset.
const DefaultSpecPath = "./.codemachine/inputs/specifications.md"

const defaultSpecPlaceholder = `# Specification

Describe what this workflow should build here.
`

// ValidationError is a typed specification-validation failure, carrying
// the offending path rather than a bare string so a caller (CLI, UI) can
// point the user at exactly the right file.
type ValidationError struct {
	Message string
	Path    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Path)
}

// SpecPath resolves the specification file path: the env var if set,
// else DefaultSpecPath.
func SpecPath() string {
	if v := os.Getenv(DefaultSpecEnvVar); v != "" {
		return v
	}
	return DefaultSpecPath
}

// CheckSpecification validates the specification file when required is
// true (the template's `specification` flag). A missing file is
// scaffolded with a placeholder and always reported as an error so the
// user edits it before the run proceeds; an existing-but-unedited or
// empty file is also an error.
func CheckSpecification(path string, required bool) error {
	if !required {
		return nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return fmt.Errorf("preflight: create specification directory: %w", mkErr)
		}
		if logging.DebugBootstrapEnabled() {
			logging.Global().WithComponent("preflight").Debug("created specification directory %s", filepath.Dir(path))
		}
		if writeErr := os.WriteFile(path, []byte(defaultSpecPlaceholder), 0o644); writeErr != nil {
			return fmt.Errorf("preflight: write default specification: %w", writeErr)
		}
		if logging.DebugBootstrapEnabled() {
			logging.Global().WithComponent("preflight").Debug("wrote placeholder specification to %s", path)
		}
		return &ValidationError{Message: "specification file did not exist; a placeholder was created, please edit it", Path: path}
	}
	if err != nil {
		return fmt.Errorf("preflight: stat specification %s: %w", path, err)
	}
	if info.IsDir() {
		return &ValidationError{Message: "specification path is a directory, expected a file", Path: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("preflight: read specification %s: %w", path, err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == strings.TrimSpace(defaultSpecPlaceholder) {
		return &ValidationError{Message: "specification file is empty or unedited, please describe what to build", Path: path}
	}

	return nil
}

// OnboardingNeeds is what the onboarding service must still collect
// before a run can begin.
type OnboardingNeeds struct {
	NeedsProjectName         bool
	NeedsTrackSelection      bool
	NeedsConditionsSelection bool
	// NeedsControllerSelection is always false in this generation:
	// controllers are template-specified, not chosen interactively.
	NeedsControllerSelection bool
	Template                 *workflow.Template
}

// CheckOnboardingNeeds determines what onboarding still owes, given the
// persisted run index and the loaded template.
func CheckOnboardingNeeds(run *workflow.RunIndex, tmpl *workflow.Template) OnboardingNeeds {
	return OnboardingNeeds{
		NeedsProjectName:         run.ProjectName == "",
		NeedsTrackSelection:      tmpl.Tracks != nil && run.SelectedTrackID == "",
		NeedsConditionsSelection: len(tmpl.ConditionGroups) > 0 && len(run.SelectedConditions) == 0,
		NeedsControllerSelection: false,
		Template:                 tmpl,
	}
}
