package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	exec := resilience.NewExecutor(resilience.Options{
		MaxRetries:       0,
		InitialBackoff:   time.Millisecond,
		FailureThreshold: 100,
	}, logger)

	client, err := NewClient(ClientOptions{
		APIBase:      server.URL,
		UploadBase:   server.URL,
		Token:        "test-token",
		MaxRedirects: 5,
		HTTPClient:   NewHTTPClient(time.Second, 5*time.Second),
		Executor:     exec,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestEnsureReleaseIdempotent(t *testing.T) {
	creates := 0
	exists := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/artifacts/releases/tags/maven-repo", func(w http.ResponseWriter, r *http.Request) {
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, Release{ID: 99, TagName: "maven-repo"})
	})
	mux.HandleFunc("POST /repos/acme/artifacts/releases", func(w http.ResponseWriter, r *http.Request) {
		creates++
		exists = true
		var req createReleaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode create payload: %v", err)
		}
		if req.TagName != "maven-repo" || req.Draft || req.Prerelease {
			t.Errorf("unexpected create payload: %+v", req)
		}
		writeJSON(w, http.StatusCreated, Release{ID: 99, TagName: req.TagName})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	first, err := client.EnsureRelease(ctx, "acme", "artifacts", "maven-repo")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	second, err := client.EnsureRelease(ctx, "acme", "artifacts", "maven-repo")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if first.ID != 99 || second.ID != 99 {
		t.Fatalf("ensure must return stable identifier: %d vs %d", first.ID, second.ID)
	}
	if creates != 1 {
		t.Fatalf("expected exactly one create call, got %d", creates)
	}
}

func TestEnsureTagCreatesFromDefaultBranchHead(t *testing.T) {
	const headSHA = "abc123def456"
	tagExists := false
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/artifacts/git/ref/tags/maven-repo", func(w http.ResponseWriter, r *http.Request) {
		if !tagExists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		ref := Ref{Ref: "refs/tags/maven-repo"}
		ref.Object.SHA = headSHA
		writeJSON(w, http.StatusOK, ref)
	})
	mux.HandleFunc("GET /repos/acme/artifacts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Repository{DefaultBranch: "main"})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/branches/main", func(w http.ResponseWriter, r *http.Request) {
		var b Branch
		b.Name = "main"
		b.Commit.SHA = headSHA
		writeJSON(w, http.StatusOK, b)
	})
	mux.HandleFunc("POST /repos/acme/artifacts/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var req createRefRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode ref payload: %v", err)
		}
		if req.Ref != "refs/tags/maven-repo" || req.SHA != headSHA {
			t.Errorf("tag must point at default branch head: %+v", req)
		}
		tagExists = true
		ref := Ref{Ref: req.Ref}
		ref.Object.SHA = req.SHA
		writeJSON(w, http.StatusCreated, ref)
	})

	client, _ := newTestClient(t, mux)
	sha, err := client.EnsureTag(context.Background(), "acme", "artifacts", "maven-repo")
	if err != nil {
		t.Fatalf("ensure tag: %v", err)
	}
	if sha != headSHA {
		t.Fatalf("expected head sha %s, got %s", headSHA, sha)
	}
}

func TestReplaceAssetResolvesConflictOnce(t *testing.T) {
	uploads := 0
	deletes := 0
	conflictCleared := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/artifacts/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		uploads++
		if !conflictCleared {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "already_exists"})
			return
		}
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusCreated, Asset{ID: 31, Name: r.URL.Query().Get("name"), Size: int64(len(body))})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Asset{{ID: 30, Name: "repository.zip"}})
	})
	mux.HandleFunc("DELETE /repos/acme/artifacts/releases/assets/30", func(w http.ResponseWriter, r *http.Request) {
		deletes++
		conflictCleared = true
		w.WriteHeader(http.StatusNoContent)
	})

	client, _ := newTestClient(t, mux)
	asset, err := client.ReplaceAsset(context.Background(), "acme", "artifacts", 7, "repository.zip", []byte("zipzip"))
	if err != nil {
		t.Fatalf("replace asset: %v", err)
	}
	if asset.ID != 31 {
		t.Fatalf("unexpected asset id: %d", asset.ID)
	}
	if deletes != 1 {
		t.Fatalf("expected exactly one delete, got %d", deletes)
	}
	if uploads != 2 {
		t.Fatalf("expected exactly two uploads (create + retry), got %d", uploads)
	}
}

func TestReplaceAssetSecondConflictTerminal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/artifacts/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "already_exists"})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/releases/7/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Asset{{ID: 30, Name: "repository.zip"}})
	})
	deletes := 0
	mux.HandleFunc("DELETE /repos/acme/artifacts/releases/assets/30", func(w http.ResponseWriter, r *http.Request) {
		deletes++
		w.WriteHeader(http.StatusNoContent)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.ReplaceAsset(context.Background(), "acme", "artifacts", 7, "repository.zip", []byte("zipzip"))
	if err == nil {
		t.Fatalf("second conflict must be terminal")
	}
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected wrapped ErrAlreadyExists, got %v", err)
	}
	if deletes != 1 {
		t.Fatalf("conflict resolution must delete exactly once, got %d", deletes)
	}
}

func TestPermanentFailureCarriesStatusAndBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/artifacts/releases/tags/maven-repo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "server exploded")
	})

	client, _ := newTestClient(t, mux)
	_, err := client.ReleaseByTag(context.Background(), "acme", "artifacts", "maven-repo")

	var perm *resilience.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if perm.Status != http.StatusInternalServerError || perm.Body != "server exploded" {
		t.Fatalf("error must carry status and body: %+v", perm)
	}
	if perm.Op != "get_release" || perm.Resource != "acme/artifacts@maven-repo" {
		t.Fatalf("error must carry op and resource: %+v", perm)
	}
}
