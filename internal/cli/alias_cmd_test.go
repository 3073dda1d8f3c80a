package cli

import (
	"strings"
	"testing"
)

func TestAliasLifecycle(t *testing.T) {
	path := migratedDB(t)

	out, _, err := runCommand(t, "--db", path, "alias", "set", "AA:BB:CC:DD:EE:FF", "  Living room ")
	if err != nil {
		t.Fatalf("alias set error = %v", err)
	}
	if !strings.Contains(out, `aa:bb:cc:dd:ee:ff is now named "Living room"`) {
		t.Fatalf("unexpected alias set output: %s", out)
	}

	out, _, err = runCommand(t, "--db", path, "alias", "list")
	if err != nil {
		t.Fatalf("alias list error = %v", err)
	}
	if !strings.Contains(out, "SENSOR") || !strings.Contains(out, "Living room") {
		t.Fatalf("unexpected alias list output: %s", out)
	}

	out, _, err = runCommand(t, "--db", path, "alias", "list", "-o", "yaml")
	if err != nil {
		t.Fatalf("alias list yaml error = %v", err)
	}
	if !strings.Contains(out, "customname: Living room") {
		t.Fatalf("unexpected alias yaml output: %s", out)
	}

	out, _, err = runCommand(t, "--db", path, "alias", "delete", "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("alias delete error = %v", err)
	}
	if !strings.Contains(out, "Removed alias") {
		t.Fatalf("unexpected alias delete output: %s", out)
	}

	out, _, err = runCommand(t, "--db", path, "alias", "rm", "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("second alias delete error = %v", err)
	}
	if !strings.Contains(out, "has no alias") {
		t.Fatalf("unexpected second delete output: %s", out)
	}
}

func TestAliasSetValidation(t *testing.T) {
	path := migratedDB(t)
	cases := [][]string{
		{"not-a-mac", "Kitchen"},
		{"aa:bb:cc:dd:ee:ff", "   "},
		{"aa:bb:cc:dd:ee:ff", strings.Repeat("x", 51)},
	}
	for _, args := range cases {
		_, _, err := runCommand(t, append([]string{"--db", path, "alias", "set"}, args...)...)
		if err == nil {
			t.Fatalf("expected alias set %q to fail", args)
		}
		if got := ExitCode(err); got != exitUsage {
			t.Fatalf("alias set %q ExitCode() = %d, want %d", args, got, exitUsage)
		}
	}
}
