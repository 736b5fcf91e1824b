package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/archive"
	"github.com/mvn-hub/mvn-hub/internal/config"
	"github.com/mvn-hub/mvn-hub/internal/endpoint"
	"github.com/mvn-hub/mvn-hub/internal/github"
	"github.com/mvn-hub/mvn-hub/internal/logging"
	"github.com/mvn-hub/mvn-hub/internal/maven"
	"github.com/mvn-hub/mvn-hub/internal/resilience"
)

// ErrClosed 表示会话已关闭，不再接受操作。
var ErrClosed = errors.New("session closed")

// Options 汇总打开会话所需的依赖。Executor 必须由进程注入并在所有
// 会话间共享，熔断与限流状态才能跨端点生效。
type Options struct {
	Global   config.GlobalConfig
	Logger   *logrus.Logger
	Executor *resilience.Executor

	// Client 为空时按 Global 构造；测试可注入指向 stub 的客户端。
	Client *github.Client
}

// Session 是一个端点的打开到关闭生命周期。
type Session struct {
	id     string
	ep     endpoint.Endpoint
	cache  *archive.Cache
	client *github.Client
	pipe   *maven.Pipeline
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// Open 解析端点、定位本地缓存文件并建立会话。本地文件缺失时尝试
// 拉取远端归档，远端链路上任何一环 404 都按首次发布处理，从空缓存
// 开始；本地文件存在但损坏则直接失败。
func Open(ctx context.Context, endpointURI string, opts Options) (*Session, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	ep, err := endpoint.Parse(endpointURI)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client, err = newClient(opts)
		if err != nil {
			return nil, err
		}
	}

	cacheFile := filepath.Join(opts.Global.CachePath, ep.CacheKey()+endpoint.ArchiveExtension)
	if _, statErr := os.Stat(cacheFile); errors.Is(statErr, fs.ErrNotExist) {
		if err := fetchRemote(ctx, client, ep, cacheFile, opts.Logger); err != nil {
			return nil, err
		}
	}

	cache, err := archive.Open(cacheFile)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		ep:     ep,
		cache:  cache,
		client: client,
		pipe:   maven.NewPipeline(cache, opts.Logger),
		logger: opts.Logger,
	}

	s.logger.WithFields(logging.SessionFields(ep.String(), ep.CacheKey(), opts.Global.AuthMode())).
		WithFields(logrus.Fields{"session_id": s.id, "entries": cache.Len()}).
		Info("会话已打开")
	return s, nil
}

// newClient 按全局配置构造协议客户端。
func newClient(opts Options) (*github.Client, error) {
	if opts.Executor == nil {
		return nil, errors.New("resilience executor is required")
	}
	token, err := opts.Global.Credential()
	if err != nil {
		return nil, err
	}
	return github.NewClient(github.ClientOptions{
		APIBase:      opts.Global.APIBase,
		UploadBase:   opts.Global.UploadBase,
		Token:        token,
		MaxRedirects: opts.Global.MaxRedirects,
		HTTPClient: github.NewHTTPClient(
			opts.Global.ConnectTimeout.DurationValue(),
			opts.Global.ReadTimeout.DurationValue(),
		),
		Executor: opts.Executor,
		Logger:   opts.Logger,
	})
}

// fetchRemote 把远端归档资产落到本地缓存文件。ErrNotFound 表示远端
// 还没有这个归档，留给 archive.Open 以空容器起步。
func fetchRemote(ctx context.Context, client *github.Client, ep endpoint.Endpoint, cacheFile string, logger *logrus.Logger) error {
	data, err := client.DownloadAssetByTag(ctx, ep.Owner, ep.Repo, ep.Tag, ep.AssetName)
	if errors.Is(err, github.ErrNotFound) {
		logger.WithFields(logging.SessionFields(ep.String(), ep.CacheKey(), "")).
			Info("远端归档不存在，按首次发布从空缓存开始")
		return nil
	}
	if err != nil {
		return fmt.Errorf("拉取远端归档 %s 失败: %w", ep.Canonical(), err)
	}

	if err := os.MkdirAll(filepath.Dir(cacheFile), 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}
	if err := os.WriteFile(cacheFile, data, 0o644); err != nil {
		return fmt.Errorf("写入缓存文件失败: %w", err)
	}
	return nil
}

// ID 返回本会话的唯一标识，用于日志关联。
func (s *Session) ID() string {
	return s.id
}

// Endpoint 返回会话绑定的端点。
func (s *Session) Endpoint() endpoint.Endpoint {
	return s.ep
}

// CacheFilePath 返回底层缓存文件位置。
func (s *Session) CacheFilePath() string {
	return s.cache.FilePath()
}

// ReadResource 从缓存读出资源内容。
func (s *Session) ReadResource(p string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.cache.Read(p)
}

// WriteResource 写入资源并触发派生管线。主写入成功即返回成功，
// 校验和与元数据派生失败只记日志。
func (s *Session) WriteResource(p string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.cache.Write(p, data); err != nil {
		return err
	}
	s.checkGzipSide(p, data)
	s.pipe.Process(p, data)
	return nil
}

// ResourceExists 报告资源是否存在于缓存。
func (s *Session) ResourceExists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.cache.Exists(p)
}

// ListResources 按前缀列出缓存中的资源路径。
func (s *Session) ListResources(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.cache.List(prefix)
}

// IsNewerThan 判断缓存中的资源是否比给定时间戳新。任何一侧时间戳
// 缺失或无法解析都按“更新”处理并记日志，宁可多拉一次也不漏更新。
func (s *Session) IsNewerThan(p string, raw string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	mod, ok := s.cache.ModTime(p)
	if !ok || mod.IsZero() {
		s.logger.WithFields(logrus.Fields{"action": "timestamp_missing", "path": p}).
			Warn("资源缺少本地时间戳，按更新处理")
		return true
	}

	t, err := parseTimestamp(raw)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"action": "timestamp_unparseable", "path": p, "value": raw}).
			Warn(err.Error())
		return true
	}
	return mod.After(t)
}

// parseTimestamp 接受 RFC3339 与 HTTP 日期两种写法。
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := http.ParseTime(raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("时间戳无法解析: %q", raw)
}

// checkGzipSide 对 gzip 族侧文件做一次透传完整性检查，损坏只告警。
func (s *Session) checkGzipSide(p string, data []byte) {
	if !strings.HasSuffix(p, ".gz") && !strings.HasSuffix(p, ".tgz") {
		return
	}
	if !archive.IsGzipData(data) {
		s.logger.WithFields(logrus.Fields{"action": "gzip_magic_missing", "path": p}).
			Warn("gzip 后缀但内容不是 gzip 流")
		return
	}
	if _, err := archive.GzipDecompress(data); err != nil {
		s.logger.WithFields(logrus.Fields{"action": "gzip_corrupt", "path": p}).
			Warn(err.Error())
	}
}

// EntryCount 返回缓存中的条目总数。
func (s *Session) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Staged 返回本会话写入的资源路径，保持首次写入顺序。
func (s *Session) Staged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Staged()
}

// Close 刷盘并在有暂存写入时把整个归档发布回远端。发布失败时缓存
// 文件已落盘且会话保持打开，可以重试 Close；零写入关闭不上传。
// 关闭成功后重复调用是空操作。
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	staged := s.cache.Staged()
	if len(staged) == 0 {
		if err := s.cache.Close(); err != nil {
			return err
		}
		s.closed = true
		s.logger.WithFields(logrus.Fields{"session_id": s.id}).
			Info("会话关闭：无暂存写入，不上传")
		return nil
	}

	data, err := s.cache.Bytes()
	if err != nil {
		return fmt.Errorf("序列化归档失败: %w", err)
	}
	if err := s.cache.Flush(); err != nil {
		return err
	}

	asset, err := s.client.Publish(ctx, s.ep.Owner, s.ep.Repo, s.ep.Tag, s.ep.AssetName, data)
	if err != nil {
		return fmt.Errorf("发布归档 %s 失败（本地缓存已保留，可重试）: %w", s.ep.Canonical(), err)
	}

	if err := s.cache.Close(); err != nil {
		return err
	}
	s.closed = true
	s.logger.WithFields(logging.SessionFields(s.ep.String(), s.ep.CacheKey(), "")).
		WithFields(logrus.Fields{
			"session_id": s.id,
			"staged":     len(staged),
			"asset_id":   asset.ID,
			"bytes":      len(data),
		}).
		Info("会话关闭：归档已发布")
	return nil
}
