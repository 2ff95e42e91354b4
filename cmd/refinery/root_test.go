package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[paths]
output_dir = %q
log_dir = %q

[llm]
api_key = "test-key"
base_url = "http://localhost:9999/v1"
model = "test-model"

[logging]
format = "json"
level = "error"
`, filepath.Join(dir, "out"), filepath.Join(dir, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := execute(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	if _, err := execute(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
	if _, err := execute(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestConfigValidateReportsSettings(t *testing.T) {
	path := writeTestConfig(t)
	out, err := execute(t, "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	for _, want := range []string{"is valid", "test-model", "backtrader"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckpointSetAndShow(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "checkpoint", "set", "--index", "7")
	if err != nil {
		t.Fatalf("checkpoint set: %v", err)
	}
	if !strings.Contains(out, "7") {
		t.Fatalf("output = %q", out)
	}

	out, err = execute(t, "--config", path, "checkpoint", "show")
	if err != nil {
		t.Fatalf("checkpoint show: %v", err)
	}
	if !strings.Contains(out, "7") {
		t.Fatalf("show output = %q", out)
	}

	out, err = execute(t, "--config", path, "checkpoint", "reset")
	if err != nil {
		t.Fatalf("checkpoint reset: %v", err)
	}
	if !strings.Contains(out, ".bak") {
		t.Fatalf("reset output = %q", out)
	}
}

func TestCheckpointSetRejectsBadIndex(t *testing.T) {
	path := writeTestConfig(t)
	if _, err := execute(t, "--config", path, "checkpoint", "set", "--index", "-5"); err == nil {
		t.Fatal("expected error for index below -1")
	}
}

func TestRunRequiresInputFlag(t *testing.T) {
	path := writeTestConfig(t)
	if _, err := execute(t, "--config", path, "run"); err == nil {
		t.Fatal("expected error for missing --input")
	}
}

func TestOutcomesEmptyLedger(t *testing.T) {
	path := writeTestConfig(t)
	out, err := execute(t, "--config", path, "outcomes")
	if err != nil {
		t.Fatalf("outcomes: %v", err)
	}
	if !strings.Contains(out, "No outcomes recorded") {
		t.Fatalf("output = %q", out)
	}
}
