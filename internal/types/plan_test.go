package types

import (
	"errors"
	"testing"
)

func TestPlanValidate_OK(t *testing.T) {
	p := &Plan{Tasks: []*TaskNode{
		{ID: 1, File: "models.py"},
		{ID: 2, File: "api.py", DependsOn: []int{1}},
		{ID: 3, File: "app.py", DependsOn: []int{1, 2}},
	}}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestPlanValidate_DuplicatePath(t *testing.T) {
	p := &Plan{Tasks: []*TaskNode{
		{ID: 1, File: "app.py"},
		{ID: 2, File: "app.py"},
	}}
	err := p.Validate()
	if !errors.Is(err, ErrPlanInvariant) {
		t.Fatalf("Validate() error = %v, want ErrPlanInvariant", err)
	}
}

func TestPlanValidate_Cycle(t *testing.T) {
	p := &Plan{Tasks: []*TaskNode{
		{ID: 1, File: "a.py", DependsOn: []int{2}},
		{ID: 2, File: "b.py", DependsOn: []int{1}},
	}}
	err := p.Validate()
	if !errors.Is(err, ErrPlanInvariant) {
		t.Fatalf("Validate() error = %v, want ErrPlanInvariant", err)
	}
}

func TestPlanValidate_UnknownDependency(t *testing.T) {
	p := &Plan{Tasks: []*TaskNode{
		{ID: 1, File: "a.py", DependsOn: []int{99}},
	}}
	if err := p.Validate(); !errors.Is(err, ErrPlanInvariant) {
		t.Fatalf("Validate() error = %v, want ErrPlanInvariant", err)
	}
}

func TestPlanDependents(t *testing.T) {
	p := &Plan{Tasks: []*TaskNode{
		{ID: 1, File: "a.py"},
		{ID: 2, File: "b.py", DependsOn: []int{1}},
		{ID: 3, File: "c.py", DependsOn: []int{1}},
	}}
	got := p.Dependents(1)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("Dependents(1) = %v, want [2 3]", got)
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	for _, tc := range []struct {
		status TaskStatus
		want   bool
	}{
		{TaskVerified, true},
		{TaskFailed, true},
		{TaskSkipped, true},
		{TaskPending, false},
		{TaskNeedsFix, false},
	} {
		if got := tc.status.Terminal(); got != tc.want {
			t.Errorf("Terminal(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestVerificationResultSummary_Stable(t *testing.T) {
	res := VerificationResult{
		Passed: false,
		Checks: map[string]CheckResult{
			"syntax": {Passed: false, Detail: "bad indent"},
			"lint":   {Passed: false, Detail: "unused var"},
			"parse":  {Passed: true},
		},
	}
	want := "lint: unused var; syntax: bad indent"
	for i := 0; i < 20; i++ {
		if got := res.Summary(); got != want {
			t.Fatalf("Summary() = %q, want %q", got, want)
		}
	}
}

func TestSizeContextScale(t *testing.T) {
	if got := SizeSmall.ContextScale(); got != 1.0 {
		t.Errorf("small scale = %v, want 1.0", got)
	}
	if got := SizeMedium.ContextScale(); got != 1.5 {
		t.Errorf("medium scale = %v, want 1.5", got)
	}
	if got := SizeLarge.ContextScale(); got != 2.0 {
		t.Errorf("large scale = %v, want 2.0", got)
	}
}
