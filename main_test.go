package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("MVN_HUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsCommand(t *testing.T) {
	opts, err := parseCLIFlags([]string{"-config", "/tmp/c.toml", "put", "releases", "a/b/c.jar", "/tmp/c.jar"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.command != "put" {
		t.Fatalf("命令解析错误: %s", opts.command)
	}
	if len(opts.args) != 3 || opts.args[0] != "releases" {
		t.Fatalf("命令参数解析错误: %v", opts.args)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d，stderr=%s", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "mvn-hub") {
		t.Fatalf("version 输出应包含 mvn-hub 标识")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), command: "bogus"})
	if code != 2 {
		t.Fatalf("未知命令应返回退出码 2，得到 %d", code)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	server := newReleaseStub(t)
	cacheDir := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "mvn-hub.log")
	cfgPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = %q
CachePath = %q
APIBase = %q
UploadBase = %q
Token = "test-token"

[[Repository]]
Name = "releases"
Endpoint = "ghr://acme/artifacts/maven-repo/repo.zip"
`, logFile, cacheDir, server.URL, server.URL))

	local := filepath.Join(t.TempDir(), "foo-1.0.jar")
	if err := os.WriteFile(local, []byte("jar bytes"), 0o644); err != nil {
		t.Fatalf("写入本地文件失败: %v", err)
	}

	useBufferWriters(t)
	code := run(cliOptions{
		configPath: cfgPath,
		command:    "put",
		args:       []string{"releases", "com/example/foo/1.0/foo-1.0.jar", local},
	})
	if code != 0 {
		t.Fatalf("put 失败，退出码 %d，stderr=%s", code, stdErrBuffer().String())
	}

	useBufferWriters(t)
	code = run(cliOptions{
		configPath: cfgPath,
		command:    "exists",
		args:       []string{"releases", "com/example/foo/1.0/foo-1.0.jar.sha256"},
	})
	if code != 0 || !strings.Contains(stdOutBuffer().String(), "true") {
		t.Fatalf("派生校验和应存在，退出码 %d，stdout=%s", code, stdOutBuffer().String())
	}

	useBufferWriters(t)
	code = run(cliOptions{
		configPath: cfgPath,
		command:    "get",
		args:       []string{"releases", "com/example/foo/1.0/foo-1.0.jar"},
	})
	if code != 0 {
		t.Fatalf("get 失败，退出码 %d，stderr=%s", code, stdErrBuffer().String())
	}
	if !bytes.Equal(stdOutBuffer().Bytes(), []byte("jar bytes")) {
		t.Fatalf("get 内容不一致: %q", stdOutBuffer().String())
	}

	useBufferWriters(t)
	code = run(cliOptions{
		configPath: cfgPath,
		command:    "ls",
		args:       []string{"releases", "com/example/foo/"},
	})
	if code != 0 {
		t.Fatalf("ls 失败，退出码 %d", code)
	}
	listing := stdOutBuffer().String()
	for _, want := range []string{"foo-1.0.jar", "foo-1.0.jar.md5", "maven-metadata.xml"} {
		if !strings.Contains(listing, want) {
			t.Fatalf("ls 输出缺少 %s:\n%s", want, listing)
		}
	}

	useBufferWriters(t)
	code = run(cliOptions{
		configPath: cfgPath,
		command:    "exists",
		args:       []string{"releases", "com/example/absent.jar"},
	})
	if code != 1 || !strings.Contains(stdOutBuffer().String(), "false") {
		t.Fatalf("不存在的资源应输出 false 且退出码 1，得到 %d", code)
	}
}

// newReleaseStub 启动一个最小的远端发布状态机。
func newReleaseStub(t *testing.T) *httptest.Server {
	t.Helper()

	var (
		tagSHA    string
		releaseID int64
		assets    = map[string]int64{}
		nextID    = int64(100)
	)

	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/artifacts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"default_branch": "main"})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/branches/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": "main", "commit": map[string]string{"sha": "abc123"}})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/git/ref/tags/maven-repo", func(w http.ResponseWriter, r *http.Request) {
		if tagSHA == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ref": "refs/tags/maven-repo", "object": map[string]string{"sha": tagSHA}})
	})
	mux.HandleFunc("POST /repos/acme/artifacts/git/refs", func(w http.ResponseWriter, r *http.Request) {
		tagSHA = "abc123"
		writeJSON(w, http.StatusCreated, map[string]interface{}{"ref": "refs/tags/maven-repo", "object": map[string]string{"sha": tagSHA}})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/releases/tags/maven-repo", func(w http.ResponseWriter, r *http.Request) {
		if releaseID == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": releaseID, "tag_name": "maven-repo"})
	})
	mux.HandleFunc("POST /repos/acme/artifacts/releases", func(w http.ResponseWriter, r *http.Request) {
		releaseID = 7
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": releaseID, "tag_name": "maven-repo"})
	})
	mux.HandleFunc("GET /repos/acme/artifacts/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		list := make([]map[string]interface{}, 0, len(assets))
		for name, id := range assets {
			list = append(list, map[string]interface{}{"id": id, "name": name})
		}
		writeJSON(w, http.StatusOK, list)
	})
	mux.HandleFunc("POST /repos/acme/artifacts/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if _, exists := assets[name]; exists {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "already_exists"})
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		nextID++
		assets[name] = nextID
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": nextID, "name": name})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
