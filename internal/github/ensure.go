package github

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/logging"
)

// EnsureTag 保证名为 tag 的轻量 tag 存在并返回其指向的提交 SHA。
// 已存在时原样返回，不做任何变更；不存在时解析默认分支 head 后创建。
func (c *Client) EnsureTag(ctx context.Context, owner, repo, tag string) (string, error) {
	ref, err := c.TagRef(ctx, owner, repo, tag)
	if err == nil {
		return ref.Object.SHA, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	branch, err := c.DefaultBranch(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	sha, err := c.BranchHead(ctx, owner, repo, branch)
	if err != nil {
		return "", err
	}

	created, err := c.CreateTagRef(ctx, owner, repo, tag, sha)
	if err != nil {
		// 并发创建竞态：对方已建好，回读即可。
		if errors.Is(err, ErrAlreadyExists) {
			if existing, getErr := c.TagRef(ctx, owner, repo, tag); getErr == nil {
				return existing.Object.SHA, nil
			}
		}
		return "", err
	}

	c.logger.WithFields(logging.RemoteFields("ensure_tag", owner+"/"+repo, tag)).
		WithFields(logrus.Fields{"sha": sha, "branch": branch}).
		Info("tag 不存在，已按默认分支 head 创建")
	return created.Object.SHA, nil
}

// EnsureRelease 保证 tag 对应的 release 存在并返回它。
// 已存在时原样返回；不存在时以最小载荷创建。
func (c *Client) EnsureRelease(ctx context.Context, owner, repo, tag string) (*Release, error) {
	release, err := c.ReleaseByTag(ctx, owner, repo, tag)
	if err == nil {
		return release, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created, err := c.CreateRelease(ctx, owner, repo, tag)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return c.ReleaseByTag(ctx, owner, repo, tag)
		}
		return nil, err
	}

	c.logger.WithFields(logging.RemoteFields("ensure_release", owner+"/"+repo, tag)).
		WithFields(logrus.Fields{"release_id": created.ID}).
		Info("release 不存在，已创建")
	return created, nil
}

// EnsureAsset 按名称取或建资产：已存在时原样返回，不覆盖内容。
func (c *Client) EnsureAsset(ctx context.Context, owner, repo string, releaseID int64, name string, data []byte) (*Asset, error) {
	asset, err := c.AssetByName(ctx, owner, repo, releaseID, name)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return c.ReplaceAsset(ctx, owner, repo, releaseID, name, data)
}

// ReplaceAsset 上传资产并以内容取胜：首传命中 422 冲突时，恰好执行
// 一次按 id 删除与一次重传；第二次仍冲突即为终态失败，绝不无限循环。
func (c *Client) ReplaceAsset(ctx context.Context, owner, repo string, releaseID int64, name string, data []byte) (*Asset, error) {
	asset, err := c.UploadAsset(ctx, owner, repo, releaseID, name, data)
	if err == nil {
		return asset, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return nil, err
	}

	existing, findErr := c.AssetByName(ctx, owner, repo, releaseID, name)
	if findErr != nil {
		return nil, fmt.Errorf("replace_asset %s: 冲突后定位既有资产失败: %w", name, findErr)
	}
	if delErr := c.DeleteAsset(ctx, owner, repo, existing.ID); delErr != nil {
		return nil, fmt.Errorf("replace_asset %s: 删除既有资产失败: %w", name, delErr)
	}

	c.logger.WithFields(logging.RemoteFields("replace_asset", owner+"/"+repo, name)).
		WithFields(logrus.Fields{"deleted_asset_id": existing.ID}).
		Warn("同名资产冲突，已删除旧资产后重传")

	asset, err = c.UploadAsset(ctx, owner, repo, releaseID, name, data)
	if err != nil {
		return nil, fmt.Errorf("replace_asset %s: 重传失败: %w", name, err)
	}
	return asset, nil
}

// Publish 按固定顺序发布归档：默认分支 → head 提交 → ensure tag →
// ensure release → 替换资产。每一步独立幂等，半途失败后重跑安全。
func (c *Client) Publish(ctx context.Context, owner, repo, tag, assetName string, data []byte) (*Asset, error) {
	if _, err := c.EnsureTag(ctx, owner, repo, tag); err != nil {
		return nil, err
	}
	release, err := c.EnsureRelease(ctx, owner, repo, tag)
	if err != nil {
		return nil, err
	}
	return c.ReplaceAsset(ctx, owner, repo, release.ID, assetName, data)
}
