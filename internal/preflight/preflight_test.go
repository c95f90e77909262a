package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cortexforge/agentflow/internal/workflow"
)

func TestCheckSpecificationSkippedWhenNotRequired(t *testing.T) {
	if err := CheckSpecification(filepath.Join(t.TempDir(), "missing.md"), false); err != nil {
		t.Errorf("expected nil when not required, got %v", err)
	}
}

func TestCheckSpecificationScaffoldsMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inputs", "specifications.md")

	err := CheckSpecification(path, true)
	var verr *ValidationError
	if err == nil {
		t.Fatal("expected validation error for missing specification")
	}
	if ok := errorsAs(err, &verr); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("expected placeholder file to be created: %v", statErr)
	}
}

func TestCheckSpecificationRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specifications.md")
	if err := os.WriteFile(path, []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := CheckSpecification(path, true); err == nil {
		t.Fatal("expected validation error for empty specification")
	}
}

func TestCheckSpecificationRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specdir")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	if err := CheckSpecification(path, true); err == nil {
		t.Fatal("expected validation error for directory path")
	}
}

func TestCheckSpecificationAcceptsEditedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specifications.md")
	if err := os.WriteFile(path, []byte("# Build a thing\n\nReal content."), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := CheckSpecification(path, true); err != nil {
		t.Errorf("expected nil for edited content, got %v", err)
	}
}

func TestCheckOnboardingNeeds(t *testing.T) {
	run := workflow.NewRunIndex()
	tmpl := &workflow.Template{
		Tracks:          &workflow.TracksQuestion{Question: "pick one"},
		ConditionGroups: []workflow.ConditionGroup{{Question: "has tests?"}},
	}

	needs := CheckOnboardingNeeds(run, tmpl)
	if !needs.NeedsProjectName || !needs.NeedsTrackSelection || !needs.NeedsConditionsSelection {
		t.Errorf("expected all needs true for fresh run, got %+v", needs)
	}
	if needs.NeedsControllerSelection {
		t.Error("expected controller selection to never be needed")
	}
}

func errorsAs(err error, target **ValidationError) bool {
	if v, ok := err.(*ValidationError); ok {
		*target = v
		return true
	}
	return false
}
