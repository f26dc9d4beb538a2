package stall

import "testing"

func TestNoCommitCounterTripsAtThreshold(t *testing.T) {
	c := NewNoCommitCounter()
	cfg := DefaultConfig()

	if c.Observe("a", 0, cfg) {
		t.Fatal("tripped after 1 no-commit session, want false")
	}
	if c.Observe("a", 0, cfg) {
		t.Fatal("tripped after 2 no-commit sessions, want false")
	}
	if !c.Observe("a", 0, cfg) {
		t.Fatal("did not trip after 3 no-commit sessions, want true")
	}
}

func TestNoCommitCounterResetsOnCommit(t *testing.T) {
	c := NewNoCommitCounter()
	cfg := DefaultConfig()
	c.Observe("a", 0, cfg)
	c.Observe("a", 0, cfg)
	c.Observe("a", 1, cfg) // commit arrives, resets
	if c.Observe("a", 0, cfg) {
		t.Fatal("expected reset after a commit, but tripped on the very next no-commit session")
	}
}

func TestConsecutiveFailureCounterTripsAtThreshold(t *testing.T) {
	c := &ConsecutiveFailureCounter{}
	cfg := DefaultConfig()
	var tripped bool
	for i := 0; i < 5; i++ {
		tripped = c.Observe(false, cfg)
	}
	if !tripped {
		t.Fatal("expected trip at 5 consecutive failures")
	}
}

func TestJaccardIdenticalTextIsOne(t *testing.T) {
	if got := Jaccard("retry the database connection", "retry the database connection"); got != 1 {
		t.Errorf("Jaccard(identical) = %v, want 1", got)
	}
}

func TestIsCircularDetectsParaphrase(t *testing.T) {
	cfg := DefaultConfig()
	prior := []string{
		"trying to fix the database connection retry logic",
		"attempting database connection retry logic again",
		"something unrelated about the frontend",
	}
	if !IsCircular("fixing database connection retry logic once more", prior, cfg) {
		t.Fatal("expected paraphrased repeats to be detected as circular")
	}
}

func TestIsCircularNotTrippedByDistinctApproaches(t *testing.T) {
	cfg := DefaultConfig()
	prior := []string{
		"add input validation to the signup form",
		"refactor the billing webhook handler",
		"write integration tests for checkout",
	}
	if IsCircular("update the README with deployment instructions", prior, cfg) {
		t.Fatal("expected unrelated approaches not to be flagged as circular")
	}
}
