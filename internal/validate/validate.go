// Package validate implements the backpressure check that keeps a claimed
// build.done completion from being accepted on the assistant's word alone.
package validate

import "strings"

// Config enumerates which evidences a build.done payload must contain
// before a claimed completion is accepted.
type Config struct {
	RequireTests bool
	RequireLint  bool
}

// Result is the outcome of parsing a completion payload.
type Result struct {
	TestsPassed bool
	LintPassed  bool
}

// Satisfied reports whether the parsed result meets the configured
// backpressure requirements.
func (r Result) Satisfied(cfg Config) bool {
	if cfg.RequireTests && !r.TestsPassed {
		return false
	}
	if cfg.RequireLint && !r.LintPassed {
		return false
	}
	return true
}

// Parse scans payload for the case-insensitive substrings "tests: pass" and
// "lint: pass". This is deliberately tolerant: the assistant is a black box
// whose free-text output is the only signal available, and a stricter
// structured scheme would just push the unreliability up one layer without
// improving the trust story.
func Parse(payload string) Result {
	lower := strings.ToLower(payload)
	return Result{
		TestsPassed: strings.Contains(lower, "tests: pass"),
		LintPassed:  strings.Contains(lower, "lint: pass"),
	}
}

// Validate is the single entry point the Post-Session Processor calls: it
// parses payload and checks it against cfg in one step.
func Validate(payload string, cfg Config) (Result, bool) {
	res := Parse(payload)
	return res, res.Satisfied(cfg)
}
