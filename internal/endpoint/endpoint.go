// Package endpoint parses repository endpoint URIs of the form
// scheme://owner/repo/tag/assetName.zip into an immutable identity and
// derives the deterministic cache key that names the local archive file.
// One endpoint identity maps to exactly one remote archive asset and to
// exactly one local cache file.
package endpoint

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/zeebo/blake3"
)

// ArchiveExtension 是端点资产名必须携带的归档后缀。
const ArchiveExtension = ".zip"

// Endpoint 唯一标识一个远端归档资产，解析完成后不可变。
type Endpoint struct {
	Owner     string
	Repo      string
	Tag       string
	AssetName string
}

// Parse 解析形如 ghr://owner/repo/tag/assetName.zip 的端点 URI。
// scheme 之后必须恰好有四段路径，且资产名必须以 .zip 结尾。
func Parse(raw string) (Endpoint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Endpoint{}, fmt.Errorf("端点 URI 不能为空")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return Endpoint{}, fmt.Errorf("端点 URI 无法解析: %w", err)
	}
	if parsed.Scheme == "" {
		return Endpoint{}, fmt.Errorf("端点 URI 缺少 scheme: %s", trimmed)
	}

	// Host 承载 owner，Path 承载其余三段。
	segments := []string{parsed.Host}
	for _, part := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) != 4 || segments[0] == "" {
		return Endpoint{}, fmt.Errorf("端点 URI 必须为 scheme://owner/repo/tag/asset%s 四段形式: %s", ArchiveExtension, trimmed)
	}
	if !strings.HasSuffix(segments[3], ArchiveExtension) {
		return Endpoint{}, fmt.Errorf("资产名必须以 %s 结尾: %s", ArchiveExtension, segments[3])
	}

	return Endpoint{
		Owner:     segments[0],
		Repo:      segments[1],
		Tag:       segments[2],
		AssetName: segments[3],
	}, nil
}

// Canonical 返回端点的规范字符串，作为缓存键摘要的输入。
func (e Endpoint) Canonical() string {
	return e.Owner + "/" + e.Repo + "/" + e.Tag + "/" + e.AssetName
}

// CacheKey 对规范字符串做 blake3 摘要，得到稳定的本地缓存文件名。
// 同一端点身份在任何进程里都会得到同一个键。
func (e Endpoint) CacheKey() string {
	sum := blake3.Sum256([]byte(e.Canonical()))
	return hex.EncodeToString(sum[:16])
}

// String 实现 fmt.Stringer，用于日志字段。
func (e Endpoint) String() string {
	return e.Canonical()
}
