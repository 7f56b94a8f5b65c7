package main

import (
	"testing"
)

func TestGrabBySessionAndLatest(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "", "search", "-x", "dune")

	out := mustRunCLI(t, env, "", "grab", "-s", "1", "-g", "2")
	requireContains(t, out, "Sent to download client:")
	requireContains(t, out, "Dune - Frank Herbert.epub")
	requireContains(t, out, "via BookNZB (usenet, 2.0 MiB)")

	out = mustRunCLI(t, env, "", "grab", "--last", "-g", "1")
	requireContains(t, out, "Using most recent search #1")
	requireContains(t, out, "Dune (Unabridged)")

	grabs := env.prowlarr.Grabs()
	if len(grabs) != 2 || grabs[0].GUID != "guid-ebook" || grabs[1].GUID != "guid-audio" {
		t.Fatalf("unexpected grabs: %+v", grabs)
	}
}

func TestLegacyRootGrabFlags(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "", "-x", "dune")

	out := mustRunCLI(t, env, "", "-s", "1", "-g", "1")
	requireContains(t, out, "Dune (Unabridged)")

	out = mustRunCLI(t, env, "", "-l", "-g", "2")
	requireContains(t, out, "Using most recent search #1")

	if got := len(env.prowlarr.Grabs()); got != 2 {
		t.Fatalf("expected 2 grabs, got %d", got)
	}
}

func TestGrabErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "", "search", "-x", "dune")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "position out of range", args: []string{"grab", "-s", "1", "-g", "9"}, want: "Hint: check the command arguments"},
		{name: "unknown session", args: []string{"grab", "-s", "42", "-g", "1"}, want: "Hint: run `booksearcher cache list`"},
		{name: "missing position", args: []string{"grab", "-s", "1"}, want: "-g <result number> is required"},
		{name: "missing session", args: []string{"grab", "-g", "1"}, want: "provide -s <search id> or --last"},
		{name: "legacy grab without session", args: []string{"-g", "1"}, want: "-g needs -s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, env, "", tc.args...)
			if res.code != 1 {
				t.Fatalf("expected exit 1, got %d (stdout %q)", res.code, res.stdout)
			}
			requireContains(t, res.stderr, tc.want)
		})
	}
	if got := len(env.prowlarr.Grabs()); got != 0 {
		t.Fatalf("expected no grabs, got %d", got)
	}
}

func TestGrabFromEmptyCache(t *testing.T) {
	env := setupCLITestEnv(t)

	res := runCLI(t, env, "", "grab", "--last", "-g", "1")
	if res.code != 1 {
		t.Fatalf("expected exit 1, got %d", res.code)
	}
	requireContains(t, res.stderr, "no previous search")
}
