//go:build pact
// +build pact

package pacttest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const (
	ProviderName = "tableside-api"
	ConsumerName = "floor-plan"

	StateNoTables     = "no tables exist"
	StateTableExists  = "table T01 exists in zone Terraza"
	StateTableOrdered = "table T01 has an open order"
)

const (
	ExistingTableID = "T01"
	MissingTableID  = "T99"
	ExampleZone     = "Terraza"
	ExampleCapacity = 4
)

// PactDir returns the workspace-level directory for generated pact files.
func PactDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "pacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact dir: %v", err)
	}
	return dir
}

// PactFile returns the canonical pact file path for the floor plan consumer.
func PactFile(t testing.TB) string {
	t.Helper()
	return filepath.Join(PactDir(t), ConsumerName+"-"+ProviderName+".json")
}

// LogDir returns the log output directory for pact-go.
func LogDir(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "bin", "pact-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create pact log dir: %v", err)
	}
	return dir
}

// ExampleTablePayload is the table the floor plan expects after seeding.
func ExampleTablePayload() map[string]any {
	return map[string]any{
		"id":                ExistingTableID,
		"zone":              ExampleZone,
		"state":             "free",
		"capacity":          ExampleCapacity,
		"effectiveCapacity": ExampleCapacity,
		"displayName":       ExistingTableID,
	}
}

// projectRoot walks up from this file to the workspace root.
func projectRoot(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine caller for pact paths")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
