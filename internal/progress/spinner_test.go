package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerRendersUntilStopped(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "Searching Prowlarr", WithInterval(time.Millisecond))
	if !s.Running() {
		t.Fatal("expected spinner to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "Searching Prowlarr") {
		if time.Now().After(deadline) {
			t.Fatalf("spinner never rendered, output %q", out.String())
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	if s.Running() {
		t.Fatal("expected spinner to be stopped")
	}
	after := out.String()
	time.Sleep(10 * time.Millisecond)
	if out.String() != after {
		t.Fatal("spinner kept writing after Stop returned")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	var out syncBuffer
	s := Start(&out, "waiting")
	s.Stop()
	s.Stop()

	var nilSpinner *Spinner
	nilSpinner.Stop()
	if nilSpinner.Running() {
		t.Fatal("nil spinner reports running")
	}
	(&Spinner{}).Stop()
}

func TestStartIfTerminalIsInertForFiles(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Fatal("regular file reported as terminal")
	}
	s := StartIfTerminal(f, "waiting")
	if s.Running() {
		t.Fatal("expected inert spinner for a regular file")
	}
	s.Stop()
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Fatalf("inert spinner wrote %d bytes", info.Size())
	}
}
