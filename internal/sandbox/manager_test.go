package sandbox

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/yanmxa/genmotion/internal/fakeserver"
)

func newManager(srv *fakeserver.Server) *Manager {
	return NewManager(NewClient(srv.SandboxURL(), srv.PersistURL(), 5*time.Second), 5*time.Second)
}

func TestReleaseIsFireAndForget(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SetActionStatus(http.StatusInternalServerError)
	m := newManager(srv)

	m.Release("node-1", "sb-1")
	m.Release("node-1", "") // no sandbox, no call
	m.Wait()

	actions := srv.Actions()
	if len(actions) != 1 {
		t.Fatalf("expected 1 cleanup call, got %d", len(actions))
	}
	if actions[0].Action != ActionCleanup || actions[0].SandboxID != "sb-1" || actions[0].NodeID != "node-1" {
		t.Errorf("unexpected action %+v", actions[0])
	}
}

func TestFinalize(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SetFinalizeURL("https://storage.example/final.mp4")
	m := newManager(srv)

	url, err := m.Finalize(context.Background(), "node-1", "sb-1", "out/final.mp4")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if url != "https://storage.example/final.mp4" {
		t.Errorf("url = %q", url)
	}

	srv.SetActionStatus(http.StatusBadGateway)
	if _, err := m.Finalize(context.Background(), "node-1", "sb-1", ""); !errors.Is(err, ErrAction) {
		t.Errorf("expected ErrAction, got %v", err)
	}
	if _, err := m.Finalize(context.Background(), "node-1", "", ""); err == nil {
		t.Error("finalize without sandbox must fail")
	}
}

func TestHandoffReportsResult(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	m := newManager(srv)

	var (
		mu  sync.Mutex
		got []PersistResult
	)
	m.Handoff(PersistRequest{NodeID: "node-1", SandboxID: "sb-1", FilePath: "out/v1.mp4", VersionID: "v1"},
		func(res PersistResult, err error) {
			if err != nil {
				t.Errorf("Handoff: %v", err)
			}
			mu.Lock()
			got = append(got, res)
			mu.Unlock()
		})
	m.Wait()

	if len(got) != 1 || got[0].VideoURL != "https://storage.example/node-1/v1.mp4" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestHandoffFailureKeepsCallerInformed(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SetPersistStatus(http.StatusInternalServerError)
	m := newManager(srv)

	var gotErr error
	m.Handoff(PersistRequest{NodeID: "n", SandboxID: "sb", FilePath: "f", VersionID: "v1"},
		func(_ PersistResult, err error) { gotErr = err })
	m.Wait()

	if !errors.Is(gotErr, ErrAction) {
		t.Errorf("expected ErrAction, got %v", gotErr)
	}
}

func TestHandoffDedupesPerVersion(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	gate := make(chan struct{})
	srv.SetPersistGate(gate)
	m := newManager(srv)

	var (
		mu      sync.Mutex
		results int
	)
	done := func(res PersistResult, err error) {
		mu.Lock()
		results++
		mu.Unlock()
	}
	req := PersistRequest{NodeID: "n", SandboxID: "sb", FilePath: "f", VersionID: "v1"}
	m.Handoff(req, done)

	// Wait for the first request to reach the server before duplicating it.
	deadline := time.Now().Add(5 * time.Second)
	for len(srv.Persists()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Handoff(req, done)
	// Give the second hand-off time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	m.Wait()

	if n := len(srv.Persists()); n != 1 {
		t.Errorf("persist requests = %d, want 1", n)
	}
	if results != 2 {
		t.Errorf("callbacks = %d, want 2", results)
	}
}

func TestGoRecoversPanics(t *testing.T) {
	m := NewManager(NewClient("", "", 0), 0)
	m.Go("boom", func() { panic("boom") })
	m.Wait()
}
