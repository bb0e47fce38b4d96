package utils

import "testing"

func TestMutexScriptCompiles(t *testing.T) {
	// Compile-time smoke test: script should be initialized.
	if mutexReleaseScript == nil {
		t.Fatalf("expected release script to be initialized")
	}
}
