package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/resilience"
)

// ErrNotFound 表示远端对象不存在（404），是惰性创建流程的分支信号。
var ErrNotFound = errors.New("remote object not found")

// ErrAlreadyExists 表示创建请求命中同名冲突（422），由上传冲突规则消解。
var ErrAlreadyExists = errors.New("remote object already exists")

const acceptJSON = "application/vnd.github+json"

// Client 是 release 目录协议的远端客户端。所有请求经共享执行器执行，
// 凭证只附加到 API/上传主机，绝不随跨主机重定向转发。
type Client struct {
	apiBase      *url.URL
	uploadBase   *url.URL
	token        string
	maxRedirects int

	http   *http.Client
	exec   *resilience.Executor
	logger *logrus.Logger
}

// ClientOptions 汇总客户端构造参数。
type ClientOptions struct {
	APIBase      string
	UploadBase   string
	Token        string
	MaxRedirects int
	HTTPClient   *http.Client
	Executor     *resilience.Executor
	Logger       *logrus.Logger
}

// NewClient 构造协议客户端；Executor 与 Logger 必须注入。
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Executor == nil {
		return nil, errors.New("resilience executor is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	api, err := url.Parse(opts.APIBase)
	if err != nil {
		return nil, fmt.Errorf("无法解析 APIBase: %w", err)
	}
	upload, err := url.Parse(opts.UploadBase)
	if err != nil {
		return nil, fmt.Errorf("无法解析 UploadBase: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(0, 0)
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	return &Client{
		apiBase:      api,
		uploadBase:   upload,
		token:        opts.Token,
		maxRedirects: maxRedirects,
		http:         httpClient,
		exec:         opts.Executor,
		logger:       opts.Logger,
	}, nil
}

// apiURL 基于 APIBase 拼接路径，path 以 / 开头。
func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.apiBase.String(), "/") + path
}

func (c *Client) uploadURL(path string) string {
	return strings.TrimRight(c.uploadBase.String(), "/") + path
}

// trustedHost 判定是否允许向该主机附加 Bearer 凭证。
func (c *Client) trustedHost(host string) bool {
	return host == c.apiBase.Host || host == c.uploadBase.Host
}

// authorize 在可信主机上附加凭证；匿名模式下什么也不做。
func (c *Client) authorize(req *http.Request) {
	if c.token == "" {
		return
	}
	if !c.trustedHost(req.URL.Host) {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// doJSON 执行一次 JSON API 调用并解码响应。404 返回 ErrNotFound，
// 422 返回 ErrAlreadyExists，其余非 2xx 一律映射为 PermanentError。
func (c *Client) doJSON(ctx context.Context, op, method, rawURL, resource string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: 编码请求体失败: %w", op, err)
		}
		body = encoded
	}

	resp, err := c.exec.Do(ctx, op, func(ctx context.Context) (*http.Response, error) {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", acceptJSON)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.authorize(req)
		return c.http.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: 解码响应失败: %w", op, resource, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", op, resource, ErrNotFound)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %w", op, resource, ErrAlreadyExists)
	default:
		return c.permanentFailure(op, resource, resp)
	}
}

// permanentFailure 读取有限长度的响应体，构造携带状态与报文的终态错误。
func (c *Client) permanentFailure(op, resource string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &resilience.PermanentError{
		Op:       op,
		Resource: resource,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(raw)),
	}
}

// DefaultBranch 查询仓库默认分支名。
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	resource := owner + "/" + repo
	var repository Repository
	err := c.doJSON(ctx, "get_repository", http.MethodGet,
		c.apiURL("/repos/"+owner+"/"+repo), resource, nil, &repository)
	if err != nil {
		return "", err
	}
	if repository.DefaultBranch == "" {
		return "", fmt.Errorf("get_repository %s: 响应缺少默认分支", resource)
	}
	return repository.DefaultBranch, nil
}

// BranchHead 查询指定分支当前 head 提交的 SHA。
func (c *Client) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	resource := owner + "/" + repo + "@" + branch
	var b Branch
	err := c.doJSON(ctx, "get_branch", http.MethodGet,
		c.apiURL("/repos/"+owner+"/"+repo+"/branches/"+url.PathEscape(branch)), resource, nil, &b)
	if err != nil {
		return "", err
	}
	if b.Commit.SHA == "" {
		return "", fmt.Errorf("get_branch %s: 响应缺少 head 提交", resource)
	}
	return b.Commit.SHA, nil
}

// TagRef 按名称查询轻量 tag ref；不存在返回 ErrNotFound。
func (c *Client) TagRef(ctx context.Context, owner, repo, tag string) (*Ref, error) {
	resource := owner + "/" + repo + "@" + tag
	var ref Ref
	err := c.doJSON(ctx, "get_tag_ref", http.MethodGet,
		c.apiURL("/repos/"+owner+"/"+repo+"/git/ref/tags/"+url.PathEscape(tag)), resource, nil, &ref)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// CreateTagRef 创建指向 sha 的轻量 tag。
func (c *Client) CreateTagRef(ctx context.Context, owner, repo, tag, sha string) (*Ref, error) {
	resource := owner + "/" + repo + "@" + tag
	payload := createRefRequest{Ref: "refs/tags/" + tag, SHA: sha}
	var ref Ref
	err := c.doJSON(ctx, "create_tag_ref", http.MethodPost,
		c.apiURL("/repos/"+owner+"/"+repo+"/git/refs"), resource, payload, &ref)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ReleaseByTag 按 tag 名查询 release；不存在返回 ErrNotFound。
func (c *Client) ReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	resource := owner + "/" + repo + "@" + tag
	var release Release
	err := c.doJSON(ctx, "get_release", http.MethodGet,
		c.apiURL("/repos/"+owner+"/"+repo+"/releases/tags/"+url.PathEscape(tag)), resource, nil, &release)
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// CreateRelease 以最小载荷创建 release：与 tag 同名、非草稿、非预发布。
func (c *Client) CreateRelease(ctx context.Context, owner, repo, tag string) (*Release, error) {
	resource := owner + "/" + repo + "@" + tag
	payload := createReleaseRequest{TagName: tag, Name: tag, Draft: false, Prerelease: false}
	var release Release
	err := c.doJSON(ctx, "create_release", http.MethodPost,
		c.apiURL("/repos/"+owner+"/"+repo+"/releases"), resource, payload, &release)
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// ListAssets 列出 release 下的全部资产。
func (c *Client) ListAssets(ctx context.Context, owner, repo string, releaseID int64) ([]Asset, error) {
	resource := fmt.Sprintf("%s/%s/releases/%d", owner, repo, releaseID)
	var assets []Asset
	err := c.doJSON(ctx, "list_assets", http.MethodGet,
		c.apiURL(fmt.Sprintf("/repos/%s/%s/releases/%d/assets?per_page=100", owner, repo, releaseID)),
		resource, nil, &assets)
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// AssetByName 在 release 资产中按名称定位；不存在返回 ErrNotFound。
func (c *Client) AssetByName(ctx context.Context, owner, repo string, releaseID int64, name string) (*Asset, error) {
	assets, err := c.ListAssets(ctx, owner, repo, releaseID)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		if assets[i].Name == name {
			return &assets[i], nil
		}
	}
	return nil, fmt.Errorf("find_asset %s/%s/%d/%s: %w", owner, repo, releaseID, name, ErrNotFound)
}

// UploadAsset 向 release 上传二进制资产；同名冲突返回 ErrAlreadyExists。
func (c *Client) UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name string, data []byte) (*Asset, error) {
	resource := fmt.Sprintf("%s/%s/releases/%d/%s", owner, repo, releaseID, name)
	rawURL := c.uploadURL(fmt.Sprintf("/repos/%s/%s/releases/%d/assets?name=%s",
		owner, repo, releaseID, url.QueryEscape(name)))

	resp, err := c.exec.Do(ctx, "upload_asset", func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", acceptJSON)
		req.Header.Set("Content-Type", "application/zip")
		req.ContentLength = int64(len(data))
		c.authorize(req)
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var asset Asset
		if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
			return nil, fmt.Errorf("upload_asset %s: 解码响应失败: %w", resource, err)
		}
		return &asset, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upload_asset %s: %w", resource, ErrAlreadyExists)
	default:
		return nil, c.permanentFailure("upload_asset", resource, resp)
	}
}

// DeleteAsset 按 id 删除资产。404 视为已删除，保证重跑安全。
func (c *Client) DeleteAsset(ctx context.Context, owner, repo string, assetID int64) error {
	resource := fmt.Sprintf("%s/%s/assets/%d", owner, repo, assetID)
	err := c.doJSON(ctx, "delete_asset", http.MethodDelete,
		c.apiURL(fmt.Sprintf("/repos/%s/%s/releases/assets/%d", owner, repo, assetID)), resource, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
