package maven

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mvn-hub/mvn-hub/internal/archive"
)

// Pipeline 在每次主产物落入缓存后派生校验和与各级元数据。
// 同一会话内使用固定时钟：观测状态不变时，再生的元数据字节完全一致。
// 派生失败一律只记日志，不影响主写入。
type Pipeline struct {
	cache  *archive.Cache
	logger *logrus.Logger

	updated time.Time
	// 同一会话内每个版本目录只分配一次 buildNumber。
	buildNumbers map[string]int
}

// NewPipeline 绑定缓存与日志，固定本会话的元数据时钟。
func NewPipeline(cache *archive.Cache, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		cache:        cache,
		logger:       logger,
		updated:      time.Now().UTC(),
		buildNumbers: make(map[string]int),
	}
}

// Process 处理一次主产物写入。side-file（校验和/签名）不触发派生；
// maven-metadata.xml 只补校验和，不做坐标分解。
func (p *Pipeline) Process(path string, data []byte) {
	if IsChecksumPath(path) || IsSignaturePath(path) {
		return
	}

	p.writeChecksums(path, data)

	if IsMetadataPath(path) {
		return
	}

	coords, err := ParseCoordinates(path)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"action": "coordinate_mismatch",
			"path":   path,
		}).Warn(err.Error())
		return
	}

	p.regenerateArtifactMetadata(coords)
	if IsPluginArtifact(coords.ArtifactID) {
		p.regenerateGroupMetadata(coords)
	}
	if coords.IsSnapshot() {
		p.regenerateVersionMetadata(coords)
	}
}

// writeChecksums 把三种摘要作为兄弟条目写入缓存。
func (p *Pipeline) writeChecksums(path string, data []byte) {
	for _, sum := range Checksums(data) {
		if err := p.cache.Write(path+"."+sum.Extension, []byte(sum.Hex)); err != nil {
			p.logger.WithFields(logrus.Fields{
				"action": "checksum_write_failed",
				"path":   path,
				"ext":    sum.Extension,
			}).Warn(err.Error())
		}
	}
}

// regenerateArtifactMetadata 扫描缓存里该 artifact 的全部版本目录，
// 重建 artifact 级元数据及其校验和。
func (p *Pipeline) regenerateArtifactMetadata(coords Coordinates) {
	artifactDir := coords.GroupPath() + "/" + coords.ArtifactID

	versionSet := map[string]struct{}{}
	for _, name := range p.cache.List(artifactDir + "/") {
		rest := strings.TrimPrefix(name, artifactDir+"/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 {
			continue
		}
		if IsMetadataPath(parts[1]) || IsChecksumPath(parts[1]) || IsSignaturePath(parts[1]) {
			continue
		}
		versionSet[parts[0]] = struct{}{}
	}

	versions := make([]string, 0, len(versionSet))
	for v := range versionSet {
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return
	}

	data, err := BuildArtifactMetadata(coords.GroupID, coords.ArtifactID, versions, p.updated)
	if err != nil {
		p.logMetadataFailure("artifact_metadata_failed", artifactDir, err)
		return
	}
	p.writeMetadata(artifactDir+"/"+MetadataFileName, data)
}

// regenerateGroupMetadata 重建 group 级插件前缀索引。
func (p *Pipeline) regenerateGroupMetadata(coords Coordinates) {
	groupDir := coords.GroupPath()

	pluginSet := map[string]struct{}{}
	for _, name := range p.cache.List(groupDir + "/") {
		rest := strings.TrimPrefix(name, groupDir+"/")
		parts := strings.Split(rest, "/")
		// groupDir/<artifactId>/<version>/<file> 三段才是产物条目。
		if len(parts) != 3 {
			continue
		}
		if IsPluginArtifact(parts[0]) {
			pluginSet[parts[0]] = struct{}{}
		}
	}

	plugins := make([]PluginEntry, 0, len(pluginSet))
	for artifactID := range pluginSet {
		plugins = append(plugins, PluginEntry{
			Name:       artifactID,
			Prefix:     PluginPrefix(artifactID),
			ArtifactID: artifactID,
		})
	}
	if len(plugins) == 0 {
		return
	}

	data, err := BuildGroupMetadata(plugins)
	if err != nil {
		p.logMetadataFailure("group_metadata_failed", groupDir, err)
		return
	}
	p.writeMetadata(groupDir+"/"+MetadataFileName, data)
}

// regenerateVersionMetadata 为 SNAPSHOT 版本重建版本级元数据。
func (p *Pipeline) regenerateVersionMetadata(coords Coordinates) {
	versionDir := coords.GroupPath() + "/" + coords.ArtifactID + "/" + coords.Version

	type variant struct{ classifier, extension string }
	observedSet := map[variant]struct{}{}
	for _, name := range p.cache.List(versionDir + "/") {
		rest := strings.TrimPrefix(name, versionDir+"/")
		if strings.Contains(rest, "/") {
			continue
		}
		if IsMetadataPath(rest) || IsChecksumPath(rest) || IsSignaturePath(rest) {
			continue
		}
		fileCoords, err := ParseCoordinates(name)
		if err != nil {
			continue
		}
		observedSet[variant{fileCoords.Classifier, fileCoords.Extension}] = struct{}{}
	}

	observed := make([]SnapshotVersion, 0, len(observedSet))
	for v := range observedSet {
		observed = append(observed, SnapshotVersion{Classifier: v.classifier, Extension: v.extension})
	}
	if len(observed) == 0 {
		return
	}

	data, err := BuildVersionMetadata(coords, p.buildNumber(versionDir), observed, p.updated)
	if err != nil {
		p.logMetadataFailure("version_metadata_failed", versionDir, err)
		return
	}
	p.writeMetadata(versionDir+"/"+MetadataFileName, data)
}

// buildNumber 为版本目录分配本会话的构建号：沿用缓存中既有元数据的
// buildNumber 加一，同一会话内保持稳定。
func (p *Pipeline) buildNumber(versionDir string) int {
	if n, ok := p.buildNumbers[versionDir]; ok {
		return n
	}
	n := 1
	if existing, err := p.cache.Read(versionDir + "/" + MetadataFileName); err == nil {
		n = ParseBuildNumber(existing) + 1
	} else if !errors.Is(err, archive.ErrNotFound) {
		p.logMetadataFailure("version_metadata_read_failed", versionDir, err)
	}
	p.buildNumbers[versionDir] = n
	return n
}

// writeMetadata 写入元数据条目及其校验和。
func (p *Pipeline) writeMetadata(path string, data []byte) {
	if err := p.cache.Write(path, data); err != nil {
		p.logMetadataFailure("metadata_write_failed", path, err)
		return
	}
	p.writeChecksums(path, data)
}

func (p *Pipeline) logMetadataFailure(action, path string, err error) {
	p.logger.WithFields(logrus.Fields{
		"action": action,
		"path":   path,
	}).Warn(err.Error())
}
