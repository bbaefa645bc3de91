package internal

import (
	"testing"
)

// testEnv is a fixed environment so subject defaults are predictable.
func testEnv() Environment {
	return Environment{Hostname: "devbox", User: "alice", WorkDir: "/home/alice/myapp"}
}

// testAnswers returns fast answers writing into a fresh temporary directory.
func testAnswers(t *testing.T) Answers {
	t.Helper()
	a := DefaultAnswers(testEnv())
	a.KeySize = 1024
	a.Days = 90
	a.OutDir = t.TempDir()
	return a
}

// resolveAnswers resolves a, failing the test on error.
func resolveAnswers(t *testing.T, a Answers) (Config, OutputSet) {
	t.Helper()
	cfg, outputs, err := Resolve(a, testEnv())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return cfg, outputs
}
