package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/logging"
	"github.com/mvn-hub/mvn-hub/internal/resilience"
)

// ErrTooManyRedirects 表示重定向链超过配置的跳数上限。
var ErrTooManyRedirects = errors.New("too many redirects")

// DownloadAssetByTag 按 tag 名定位 release 与资产并下载其二进制内容。
// 每次调用都重新解析 release/asset id，不跨操作缓存远端标识。
func (c *Client) DownloadAssetByTag(ctx context.Context, owner, repo, tag, assetName string) ([]byte, error) {
	release, err := c.ReleaseByTag(ctx, owner, repo, tag)
	if err != nil {
		return nil, err
	}
	asset, err := c.AssetByName(ctx, owner, repo, release.ID, assetName)
	if err != nil {
		return nil, err
	}
	return c.DownloadAsset(ctx, owner, repo, asset.ID)
}

// DownloadAsset 下载资产二进制。API 以 302 指向真实存储时手动跟随，
// 凭证只会发往可信主机，存储侧的预签名地址不携带 Authorization。
func (c *Client) DownloadAsset(ctx context.Context, owner, repo string, assetID int64) ([]byte, error) {
	resource := fmt.Sprintf("%s/%s/assets/%d", owner, repo, assetID)
	rawURL := c.apiURL(fmt.Sprintf("/repos/%s/%s/releases/assets/%d", owner, repo, assetID))

	resp, err := c.followRedirects(ctx, "download_asset", resource, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("download_asset %s: 读取响应失败: %w", resource, err)
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("download_asset %s: %w", resource, ErrNotFound)
	default:
		return nil, c.permanentFailure("download_asset", resource, resp)
	}
}

// followRedirects 是所有下载路径共用的手动重定向工具：
// 301/302/303/307/308 逐跳跟随，超过 maxRedirects 即硬失败。
func (c *Client) followRedirects(ctx context.Context, op, resource, startURL string) (*http.Response, error) {
	current := startURL

	for hop := 0; hop <= c.maxRedirects; hop++ {
		resp, err := c.exec.Do(ctx, op, func(ctx context.Context) (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/octet-stream")
			c.authorize(req)
			return c.http.Do(req)
		})
		if err != nil {
			return nil, err
		}

		if !isRedirectStatus(resp.StatusCode) {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if location == "" {
			return nil, &resilience.PermanentError{
				Op:       op,
				Resource: resource,
				Status:   resp.StatusCode,
				Body:     "重定向响应缺少 Location 头",
			}
		}

		next, err := resolveLocation(current, location)
		if err != nil {
			return nil, &resilience.PermanentError{Op: op, Resource: resource, Err: err}
		}

		c.logger.WithFields(logging.RemoteFields(op, resource, next)).
			WithFields(logrus.Fields{"hop": hop + 1}).
			Debug("跟随重定向")
		current = next
	}

	return nil, &resilience.PermanentError{
		Op:       op,
		Resource: resource,
		Err:      fmt.Errorf("%w: 超过 %d 跳", ErrTooManyRedirects, c.maxRedirects),
	}
}

func isRedirectStatus(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// resolveLocation 相对 Location 按当前 URL 解析为绝对地址。
func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("当前 URL 无法解析: %w", err)
	}
	next, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("Location 无法解析: %w", err)
	}
	return base.ResolveReference(next).String(), nil
}
