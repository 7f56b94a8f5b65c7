package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env, "", "config", "validate")
	requireContains(t, out, "Configuration valid")

	out = mustRunCLI(t, env, "", "config", "show")
	requireContains(t, out, "[prowlarr]")
	requireContains(t, out, "se**et")
	requireNotContains(t, out, "secret")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out = mustRunCLI(t, env, "", "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	res := runCLI(t, env, "", "config", "init", "--path", target)
	if res.code != 1 {
		t.Fatalf("expected second init to fail, got %d", res.code)
	}
	requireContains(t, res.stderr, "--overwrite")

	mustRunCLI(t, env, "", "config", "init", "--path", target, "--overwrite")
}

func TestConfigInitSkipsBrokenConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("not = [valid"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, env, "", "cache", "list")
	if res.code != 1 {
		t.Fatalf("expected broken config to fail, got %d", res.code)
	}
	requireContains(t, res.stderr, "parse config")

	target := filepath.Join(t.TempDir(), "config.toml")
	mustRunCLI(t, env, "", "config", "init", "--path", target)
}
