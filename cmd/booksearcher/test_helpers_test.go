package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"booksearcher/internal/config"
	"booksearcher/internal/services/prowlarr"
	"booksearcher/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	prowlarr   *testsupport.FakeProwlarr
	configPath string
}

type cliResult struct {
	stdout string
	stderr string
	code   int
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	for _, key := range []string{
		"PROWLARR_URL", "API_KEY", "CACHE_MAX_AGE", "CACHE_MAX_SIZE",
		"CACHE_MAX_ENTRIES", "BOOKSEARCHER_SERVER_TOKEN", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("HOME", t.TempDir())

	fake := testsupport.NewProwlarr(t)
	fake.Releases = []prowlarr.Release{
		{GUID: "guid-ebook", IndexerID: 11, Indexer: "BookNZB", Title: "Dune - Frank Herbert.epub", Size: 2 << 20, Protocol: "usenet", Grabs: 40},
		{GUID: "guid-audio", IndexerID: 10, Indexer: "AudioTracker", Title: "Dune (Unabridged)", Size: 900 << 20, Protocol: "torrent", Seeders: 12},
	}
	base := []testsupport.ConfigOption{testsupport.WithProwlarr(fake.URL(), testsupport.FakeAPIKey)}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	cfg.Prowlarr.RetryAttempts = 1

	env := &cliTestEnv{
		cfg:        cfg,
		prowlarr:   fake,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml"),
	}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) cliResult {
	t.Helper()
	full := append([]string{"--config=" + env.configPath}, args...)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func mustRunCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) string {
	t.Helper()
	res := runCLI(t, env, stdin, args...)
	if res.code != 0 {
		t.Fatalf("booksearcher %s exited %d\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), res.code, res.stdout, res.stderr)
	}
	return res.stdout
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", substr, output)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected output not to contain %q\noutput:\n%s", substr, output)
	}
}
