package paper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not complete")
		return nil
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/paper/") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(protocol.FinalPaperResponse{
			FinalPaper:       "# Final\n\nbody",
			Status:           "completed",
			PaperWritingMode: true,
		})
	}))
	defer srv.Close()

	g := New(srv.URL, nil)
	done := make(chan error, 1)
	g.Fetch(context.Background(), "t1", func(err error) { done <- err })

	if err := waitDone(t, done); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	st := g.State()
	if st.Loading {
		t.Error("Loading should be false after resolution")
	}
	if st.Err != "" {
		t.Errorf("Err = %q, want empty", st.Err)
	}
	if st.Artifact == nil || st.Artifact.FinalPaper != "# Final\n\nbody" {
		t.Fatalf("Artifact = %+v", st.Artifact)
	}
	if !st.Artifact.PaperWritingMode || st.Artifact.Status != "completed" {
		t.Errorf("metadata not stored: %+v", st.Artifact)
	}
	if !g.ArtifactPresent() {
		t.Error("ArtifactPresent should be true")
	}
}

func TestFetchFailureKeepsPreviousArtifact(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "backend exploded", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(protocol.FinalPaperResponse{FinalPaper: "v1"})
	}))
	defer srv.Close()

	g := New(srv.URL, nil)
	done := make(chan error, 1)
	g.Fetch(context.Background(), "t1", func(err error) { done <- err })
	if err := waitDone(t, done); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	fail = true
	// Clear loading guard state by reusing the same thread id.
	g.Fetch(context.Background(), "t1", func(err error) { done <- err })
	if err := waitDone(t, done); err == nil {
		t.Fatal("second fetch should fail")
	}

	st := g.State()
	if st.Err == "" {
		t.Error("error should be stored")
	}
	if st.Artifact == nil || st.Artifact.FinalPaper != "v1" {
		t.Errorf("previous artifact must survive a failed fetch: %+v", st.Artifact)
	}
}

func TestFetchIgnoredWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(protocol.FinalPaperResponse{FinalPaper: "x"})
	}))
	defer srv.Close()

	g := New(srv.URL, nil)
	done := make(chan error, 2)
	g.Fetch(context.Background(), "t1", func(err error) { done <- err })
	if !g.InFlight() {
		t.Fatal("InFlight should be true")
	}
	g.Fetch(context.Background(), "t1", func(err error) { done <- err })

	close(release)
	waitDone(t, done)

	select {
	case <-done:
		t.Fatal("second fetch should have been a no-op")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClearDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(protocol.FinalPaperResponse{FinalPaper: "stale"})
	}))
	defer srv.Close()

	g := New(srv.URL, nil)
	g.Fetch(context.Background(), "t1", nil)

	// The user starts a new thread before the fetch resolves.
	g.Clear()
	close(release)

	time.Sleep(200 * time.Millisecond)
	st := g.State()
	if st.Artifact != nil {
		t.Errorf("stale response stored after Clear: %+v", st.Artifact)
	}
	if st.Loading {
		t.Error("Clear should reset loading")
	}
}
