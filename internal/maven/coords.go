// Package maven derives repository artifacts from staged writes:
// checksum side-files, coordinate decomposition of repository paths, and
// the three levels of maven-metadata.xml synthesis. Derivation failures
// are non-fatal by contract; the primary write always stands.
package maven

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// SnapshotSuffix 标记需要 timestamp/buildNumber 跟踪的版本。
const SnapshotSuffix = "-SNAPSHOT"

// MetadataFileName 是各级元数据文件的固定名称。
const MetadataFileName = "maven-metadata.xml"

// Coordinates 是从仓库相对路径推导出的坐标，不做持久化。
type Coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Extension  string
}

// IsSnapshot 报告版本是否带 SNAPSHOT 后缀。
func (c Coordinates) IsSnapshot() bool {
	return strings.HasSuffix(c.Version, SnapshotSuffix)
}

// GroupPath 返回 groupId 的目录形式。
func (c Coordinates) GroupPath() string {
	return strings.ReplaceAll(c.GroupID, ".", "/")
}

// checksumExtensions 是作为兄弟条目生成的校验和后缀。
var checksumExtensions = []string{"md5", "sha1", "sha256"}

// IsChecksumPath 判断路径是否为校验和side-file。
func IsChecksumPath(p string) bool {
	for _, ext := range checksumExtensions {
		if strings.HasSuffix(p, "."+ext) {
			return true
		}
	}
	return false
}

// IsSignaturePath 判断路径是否为签名 side-file。
func IsSignaturePath(p string) bool {
	return strings.HasSuffix(p, ".asc")
}

// stripChecksumExt 去掉末尾的校验和后缀（若有）。
func stripChecksumExt(p string) string {
	for _, ext := range checksumExtensions {
		if strings.HasSuffix(p, "."+ext) {
			return strings.TrimSuffix(p, "."+ext)
		}
	}
	return p
}

// IsMetadataPath 判断路径（允许带校验和后缀）是否为元数据文件。
func IsMetadataPath(p string) bool {
	return path.Base(stripChecksumExt(p)) == MetadataFileName
}

// ParseCoordinates 把 <groupPath>/<artifactId>/<version>/<filename> 分解为
// 坐标。文件名必须内嵌与路径段一致的 artifactId 与 version，不一致即报错，
// 绝不默默采信其中一方。maven-metadata.xml 是合法的独立情形，调用方应先用
// IsMetadataPath 分流。
func ParseCoordinates(p string) (Coordinates, error) {
	clean := strings.Trim(path.Clean("/"+p), "/")
	base := stripChecksumExt(clean)

	segments := strings.Split(base, "/")
	if len(segments) < 4 {
		return Coordinates{}, fmt.Errorf("路径段不足，无法分解坐标: %s", p)
	}

	filename := segments[len(segments)-1]
	version := segments[len(segments)-2]
	artifactID := segments[len(segments)-3]
	groupID := strings.Join(segments[:len(segments)-3], ".")

	prefix := artifactID + "-" + version
	if !strings.HasPrefix(filename, prefix) {
		return Coordinates{}, fmt.Errorf("文件名 %s 与路径段 artifactId=%s version=%s 不一致", filename, artifactID, version)
	}

	rest := filename[len(prefix):]
	coords := Coordinates{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Version:    version,
	}

	switch {
	case strings.HasPrefix(rest, "."):
		coords.Extension = rest[1:]
	case strings.HasPrefix(rest, "-"):
		// 可选 classifier 位于 version 与扩展名之间。
		body := rest[1:]
		dot := strings.Index(body, ".")
		if dot <= 0 {
			return Coordinates{}, fmt.Errorf("文件名 %s 缺少扩展名", filename)
		}
		coords.Classifier = body[:dot]
		coords.Extension = body[dot+1:]
	default:
		return Coordinates{}, fmt.Errorf("文件名 %s 与坐标结构不符", filename)
	}

	if coords.Extension == "" {
		return Coordinates{}, fmt.Errorf("文件名 %s 缺少扩展名", filename)
	}
	return coords, nil
}

// CompareVersions 做数字感知的版本比较：按 . 与 - 切分后逐段对比，
// 两段皆为数字时按数值比较，否则按字典序。返回 -1/0/1。
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	as := splitVersion(a)
	bs := splitVersion(b)

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av == bv {
			continue
		}

		ai, aNum := parseNumeric(av)
		bi, bNum := parseNumeric(bv)
		switch {
		case aNum && bNum:
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
		case aNum:
			return 1
		case bNum:
			return -1
		default:
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func splitVersion(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-'
	})
}

func parseNumeric(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxVersion 返回集合中按 CompareVersions 最大的版本，空集合返回 ""。
func MaxVersion(versions []string) string {
	latest := ""
	for _, v := range versions {
		if latest == "" || CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// MaxReleaseVersion 返回最大的非 SNAPSHOT 版本，不存在时返回 ""。
func MaxReleaseVersion(versions []string) string {
	latest := ""
	for _, v := range versions {
		if strings.HasSuffix(v, SnapshotSuffix) {
			continue
		}
		if latest == "" || CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// pluginMarker 是构建插件的命名水印。
const pluginMarker = "maven-plugin"

// IsPluginArtifact 以命名启发式判断是否为构建插件。
func IsPluginArtifact(artifactID string) bool {
	return strings.Contains(artifactID, pluginMarker)
}

// PluginPrefix 按惯例从插件 artifactId 推导目标前缀：
// maven-clean-plugin → clean，foo-maven-plugin → foo。
func PluginPrefix(artifactID string) string {
	if prefix := strings.TrimSuffix(artifactID, "-maven-plugin"); prefix != artifactID {
		return prefix
	}
	trimmed := strings.TrimPrefix(artifactID, "maven-")
	if prefix := strings.TrimSuffix(trimmed, "-plugin"); prefix != trimmed {
		return prefix
	}
	return artifactID
}
