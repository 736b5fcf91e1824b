package maven

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"
)

// 时间格式遵循仓库元数据惯例。
const (
	lastUpdatedFormat       = "20060102150405"
	snapshotTimestampFormat = "20060102.150405"
)

// artifactMetadata 映射 artifact 级 maven-metadata.xml。
type artifactMetadata struct {
	XMLName    xml.Name           `xml:"metadata"`
	GroupID    string             `xml:"groupId"`
	ArtifactID string             `xml:"artifactId"`
	Versioning artifactVersioning `xml:"versioning"`
}

type artifactVersioning struct {
	Latest      string   `xml:"latest"`
	Release     string   `xml:"release,omitempty"`
	Versions    []string `xml:"versions>version"`
	LastUpdated string   `xml:"lastUpdated"`
}

// groupMetadata 映射 group 级插件前缀索引。
type groupMetadata struct {
	XMLName xml.Name      `xml:"metadata"`
	Plugins []PluginEntry `xml:"plugins>plugin"`
}

// PluginEntry 是 group 级元数据中的一条插件记录。
type PluginEntry struct {
	Name       string `xml:"name"`
	Prefix     string `xml:"prefix"`
	ArtifactID string `xml:"artifactId"`
}

// versionMetadata 映射 SNAPSHOT 版本级元数据。
type versionMetadata struct {
	XMLName    xml.Name          `xml:"metadata"`
	GroupID    string            `xml:"groupId"`
	ArtifactID string            `xml:"artifactId"`
	Version    string            `xml:"version"`
	Versioning versionVersioning `xml:"versioning"`
}

type versionVersioning struct {
	Snapshot         snapshotBlock     `xml:"snapshot"`
	LastUpdated      string            `xml:"lastUpdated"`
	SnapshotVersions []SnapshotVersion `xml:"snapshotVersions>snapshotVersion"`
}

type snapshotBlock struct {
	Timestamp   string `xml:"timestamp"`
	BuildNumber int    `xml:"buildNumber"`
}

// SnapshotVersion 描述一个观测到的 (classifier, extension) 产物。
type SnapshotVersion struct {
	Classifier string `xml:"classifier,omitempty"`
	Extension  string `xml:"extension"`
	Value      string `xml:"value"`
	Updated    string `xml:"updated"`
}

// marshalMetadata 输出带 XML 头的缩进文档。相同输入必然得到相同字节，
// 元数据的确定性依赖于此。
func marshalMetadata(v interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("编码元数据失败: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, []byte(xml.Header)...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// BuildArtifactMetadata 生成 artifact 级元数据：版本集排序后写入，
// latest 取数字感知最大值，release 取最大非 SNAPSHOT 版本（可缺席）。
func BuildArtifactMetadata(groupID, artifactID string, versions []string, updated time.Time) ([]byte, error) {
	sorted := make([]string, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool {
		return CompareVersions(sorted[i], sorted[j]) < 0
	})

	meta := artifactMetadata{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Versioning: artifactVersioning{
			Latest:      MaxVersion(sorted),
			Release:     MaxReleaseVersion(sorted),
			Versions:    sorted,
			LastUpdated: updated.UTC().Format(lastUpdatedFormat),
		},
	}
	return marshalMetadata(meta)
}

// BuildGroupMetadata 生成 group 级插件索引，按 artifactId 排序。
func BuildGroupMetadata(plugins []PluginEntry) ([]byte, error) {
	sorted := make([]PluginEntry, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ArtifactID < sorted[j].ArtifactID
	})
	return marshalMetadata(groupMetadata{Plugins: sorted})
}

// BuildVersionMetadata 生成 SNAPSHOT 版本级元数据：快照时间戳、递增的
// buildNumber，以及每个观测到的 (classifier, extension) 一条记录。
func BuildVersionMetadata(coords Coordinates, buildNumber int, observed []SnapshotVersion, updated time.Time) ([]byte, error) {
	stamp := updated.UTC().Format(lastUpdatedFormat)

	sorted := make([]SnapshotVersion, len(observed))
	copy(sorted, observed)
	for i := range sorted {
		sorted[i].Value = coords.Version
		sorted[i].Updated = stamp
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Classifier != sorted[j].Classifier {
			return sorted[i].Classifier < sorted[j].Classifier
		}
		return sorted[i].Extension < sorted[j].Extension
	})

	meta := versionMetadata{
		GroupID:    coords.GroupID,
		ArtifactID: coords.ArtifactID,
		Version:    coords.Version,
		Versioning: versionVersioning{
			Snapshot: snapshotBlock{
				Timestamp:   updated.UTC().Format(snapshotTimestampFormat),
				BuildNumber: buildNumber,
			},
			LastUpdated:      stamp,
			SnapshotVersions: sorted,
		},
	}
	return marshalMetadata(meta)
}

// ParseBuildNumber 从既有版本级元数据中提取 buildNumber，解析失败返回 0。
func ParseBuildNumber(data []byte) int {
	var meta versionMetadata
	if err := xml.Unmarshal(data, &meta); err != nil {
		return 0
	}
	return meta.Versioning.Snapshot.BuildNumber
}
