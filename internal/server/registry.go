package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mvn-hub/mvn-hub/internal/endpoint"
)

// ResourceSource 是注册表对会话的最小要求，测试可以注入内存实现。
type ResourceSource interface {
	ReadResource(p string) ([]byte, error)
	ResourceExists(p string) bool
	ListResources(prefix string) []string
	Endpoint() endpoint.Endpoint
	EntryCount() int
	Staged() []string
}

// RepoRegistry 维护仓库名到已打开会话的映射。名称在注册时归一为小写，
// 查找大小写不敏感。
type RepoRegistry struct {
	mu    sync.RWMutex
	repos map[string]ResourceSource
}

// NewRepoRegistry 创建空注册表。
func NewRepoRegistry() *RepoRegistry {
	return &RepoRegistry{repos: make(map[string]ResourceSource)}
}

// Register 绑定仓库名与会话，重名报错。
func (r *RepoRegistry) Register(name string, source ResourceSource) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("仓库名不能为空")
	}
	if source == nil {
		return fmt.Errorf("仓库 %s 的会话不能为空", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.repos[key]; exists {
		return fmt.Errorf("仓库名重复: %s", name)
	}
	r.repos[key] = source
	return nil
}

// Lookup 按仓库名查找会话。
func (r *RepoRegistry) Lookup(name string) (ResourceSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.repos[strings.ToLower(strings.TrimSpace(name))]
	return source, ok
}

// Names 返回已注册的仓库名，排序后输出。
func (r *RepoRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RepoStats 描述一个仓库的运行时状态，用于诊断接口。
type RepoStats struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Entries  int    `json:"entries"`
	Staged   int    `json:"staged"`
}

// Stats 汇总所有仓库的状态，按仓库名排序。
func (r *RepoRegistry) Stats() []RepoStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]RepoStats, 0, len(r.repos))
	for name, source := range r.repos {
		stats = append(stats, RepoStats{
			Name:     name,
			Endpoint: source.Endpoint().String(),
			Entries:  source.EntryCount(),
			Staged:   len(source.Staged()),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
