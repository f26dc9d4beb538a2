package validate

import "testing"

func TestParseCaseInsensitive(t *testing.T) {
	r := Parse("Build finished. Tests: PASS, Lint: Pass\nsummary follows")
	if !r.TestsPassed || !r.LintPassed {
		t.Fatalf("Parse() = %+v, want both true", r)
	}
}

func TestSatisfied(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		cfg  Config
		want bool
	}{
		{"neither required", Result{}, Config{}, true},
		{"tests required and present", Result{TestsPassed: true}, Config{RequireTests: true}, true},
		{"tests required and missing", Result{}, Config{RequireTests: true}, false},
		{"lint required and missing", Result{TestsPassed: true}, Config{RequireTests: true, RequireLint: true}, false},
		{"both required and present", Result{TestsPassed: true, LintPassed: true}, Config{RequireTests: true, RequireLint: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Satisfied(tt.cfg); got != tt.want {
				t.Errorf("Satisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRejectsMissingLint(t *testing.T) {
	_, ok := Validate("tests: pass", Config{RequireTests: true, RequireLint: true})
	if ok {
		t.Fatal("expected rejection when lint evidence is absent and required")
	}
}
