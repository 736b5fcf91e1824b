package routes

import (
	"bytes"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/archive"
	"github.com/mvn-hub/mvn-hub/internal/endpoint"
	"github.com/mvn-hub/mvn-hub/internal/server"
)

type memSource struct {
	ep      endpoint.Endpoint
	entries map[string][]byte
}

func (m *memSource) ReadResource(p string) ([]byte, error) {
	data, ok := m.entries[p]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return data, nil
}

func (m *memSource) ResourceExists(p string) bool {
	_, ok := m.entries[p]
	return ok
}

func (m *memSource) ListResources(prefix string) []string {
	var out []string
	for name := range m.entries {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memSource) Endpoint() endpoint.Endpoint { return m.ep }
func (m *memSource) EntryCount() int             { return len(m.entries) }
func (m *memSource) Staged() []string            { return nil }

func newDiagnosticsApp(t *testing.T) *fiber.App {
	t.Helper()

	ep, err := endpoint.Parse("ghr://acme/artifacts/maven-repo/repo.zip")
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}

	registry := server.NewRepoRegistry()
	err = registry.Register("releases", &memSource{
		ep:      ep,
		entries: map[string][]byte{"com/example/foo/1.0/foo-1.0.jar": []byte("jar")},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	RegisterDiagnostics(app, registry)
	return app
}

func TestHealthzEndpoint(t *testing.T) {
	app := newDiagnosticsApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/healthz", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"status":"ok"`)) {
		t.Fatalf("unexpected healthz payload: %s", body)
	}
}

func TestStatsEndpointListsRepositories(t *testing.T) {
	app := newDiagnosticsApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/stats", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{`"name":"releases"`, `"endpoint":"acme/artifacts/maven-repo/repo.zip"`, `"entries":1`} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("stats payload missing %s: %s", want, body)
		}
	}
}
