package main

import (
	"encoding/json"
	"testing"

	"booksearcher/internal/testsupport"
)

func TestHistoryShowsSearchesAndGrabs(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "", "search", "-x", "dune")
	mustRunCLI(t, env, "", "grab", "-s", "1", "-g", "1")

	out := mustRunCLI(t, env, "", "history")
	requireContains(t, out, "search")
	requireContains(t, out, "grab")
	requireContains(t, out, "Dune (Unabridged)")
	requireContains(t, out, "Searches: 1  Grabs: 1")

	out = mustRunCLI(t, env, "", "history", "--json", "-n", "1")
	var decoded struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
		Totals struct {
			Searches int `json:"searches"`
			Grabs    int `json:"grabs"`
		} `json:"totals"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(decoded.Events) != 1 || decoded.Events[0].Type != "grab" {
		t.Fatalf("expected the grab as the newest event, got %+v", decoded.Events)
	}
	if decoded.Totals.Searches != 1 || decoded.Totals.Grabs != 1 {
		t.Fatalf("unexpected totals: %+v", decoded.Totals)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutHistory())

	mustRunCLI(t, env, "", "search", "-x", "dune")
	out := mustRunCLI(t, env, "", "history")
	requireContains(t, out, "History is disabled")
}
