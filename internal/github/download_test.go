package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDownloadAssetByTagResolvesThenFetches(t *testing.T) {
	payload := []byte("archive-bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/artifacts/releases/tags/maven-repo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Release{ID: 12, TagName: "maven-repo"})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/releases/12/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Asset{{ID: 55, Name: "repository.zip"}})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/releases/assets/55", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/octet-stream" {
			t.Errorf("binary download must request octet-stream, got %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	})

	client, _ := newTestClient(t, mux)
	data, err := client.DownloadAssetByTag(context.Background(), "acme", "artifacts", "maven-repo", "repository.zip")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload mismatch: %q", data)
	}
}

func TestDownloadFollowsRedirectChainWithinBound(t *testing.T) {
	payload := []byte("redirected-bytes")
	mux := http.NewServeMux()
	for i := 0; i < 5; i++ {
		hop := i
		path := fmt.Sprintf("/hop/%d", hop)
		if hop == 0 {
			path = "/repos/acme/artifacts/releases/assets/55"
		}
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			if hop == 4 {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(payload)
				return
			}
			w.Header().Set("Location", fmt.Sprintf("/hop/%d", hop+1))
			w.WriteHeader(http.StatusFound)
		})
	}

	client, _ := newTestClient(t, mux)
	data, err := client.DownloadAsset(context.Background(), "acme", "artifacts", 55)
	if err != nil {
		t.Fatalf("download across 4 hops: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload mismatch: %q", data)
	}
}

func TestDownloadRejectsExcessiveRedirects(t *testing.T) {
	// 每一跳都继续 302，链长超过 maxRedirects=5。
	hops := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hops++
		w.Header().Set("Location", fmt.Sprintf("/hop/%d", hops))
		w.WriteHeader(http.StatusFound)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.DownloadAsset(context.Background(), "acme", "artifacts", 55)
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
	if hops != 6 {
		t.Fatalf("limit 5 permits exactly 6 requests before failing, got %d", hops)
	}
}

func TestDownloadDoesNotForwardTokenAcrossHosts(t *testing.T) {
	payload := []byte("storage-bytes")
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("credential must not be forwarded to a different host")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	defer storage.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/artifacts/releases/assets/55", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("API host must receive the bearer credential, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Location", storage.URL+"/blob")
		w.WriteHeader(http.StatusFound)
	})

	client, api := newTestClient(t, mux)
	_ = api

	data, err := client.DownloadAsset(context.Background(), "acme", "artifacts", 55)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("payload mismatch: %q", data)
	}
}
