// Package archive implements the local zip container that stands in for
// one remote repository's full contents. A cache is opened once per
// session, mutated in memory, and flushed as a whole-archive rewrite
// (temp file + rename) on close. The zip codec comes from
// klauspost/compress for its drop-in faster deflate.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// ErrNotFound 表示缓存中不存在该路径的条目。
var ErrNotFound = errors.New("archive entry not found")

// ErrClosed 表示缓存句柄已关闭。
var ErrClosed = errors.New("archive cache closed")

// Cache 是一个端点对应的本地压缩容器。条目按路径唯一：写入总是
// 替换而非追加。同一缓存文件由打开它的会话独占。
type Cache struct {
	filePath string

	entries  map[string][]byte
	modTimes map[string]time.Time

	staged    []string
	stagedSet map[string]struct{}

	dirty  bool
	closed bool
}

// Open 打开（或新建）filePath 处的缓存容器。文件不存在视为首次发布，
// 从空容器开始；文件存在但无法解析则是致命错误，绝不当作空容器——
// 那会丢失远端状态。
func Open(filePath string) (*Cache, error) {
	c := &Cache{
		filePath:  filePath,
		entries:   make(map[string][]byte),
		modTimes:  make(map[string]time.Time),
		stagedSet: make(map[string]struct{}),
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("检查缓存文件失败: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("缓存路径是目录: %s", filePath)
	}

	reader, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("缓存文件损坏或不可读（拒绝按空容器处理）: %s: %w", filePath, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if strings.HasSuffix(file.Name, "/") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("读取缓存条目 %s 失败: %w", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("读取缓存条目 %s 失败: %w", file.Name, err)
		}
		name := normalizePath(file.Name)
		c.entries[name] = data
		c.modTimes[name] = file.Modified
	}

	return c, nil
}

// normalizePath 将路径规范化：前导分隔符与多余的 ./ 片段都视为等价。
func normalizePath(p string) string {
	cleaned := path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(cleaned, "/")
}

// Read 返回路径对应的条目内容；不存在返回 ErrNotFound。
func (c *Cache) Read(p string) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	data, ok := c.entries[normalizePath(p)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write 插入或替换路径处的条目。同一路径永远只有一个条目。
func (c *Cache) Write(p string, data []byte) error {
	if c.closed {
		return ErrClosed
	}
	name := normalizePath(p)
	if name == "" {
		return errors.New("条目路径不能为空")
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	c.entries[name] = stored
	c.modTimes[name] = time.Now().UTC()
	c.dirty = true

	if _, seen := c.stagedSet[name]; !seen {
		c.stagedSet[name] = struct{}{}
		c.staged = append(c.staged, name)
	}
	return nil
}

// Exists 报告路径处是否存在条目。
func (c *Cache) Exists(p string) bool {
	if c.closed {
		return false
	}
	_, ok := c.entries[normalizePath(p)]
	return ok
}

// ModTime 返回条目的修改时间；不存在返回零值与 false。
func (c *Cache) ModTime(p string) (time.Time, bool) {
	t, ok := c.modTimes[normalizePath(p)]
	return t, ok
}

// List 返回带给定前缀的条目路径，按字典序排序。空前缀列出全部。
func (c *Cache) List(prefix string) []string {
	if c.closed {
		return nil
	}
	norm := normalizePath(prefix)
	var names []string
	for name := range c.entries {
		if norm == "" || strings.HasPrefix(name, norm) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Staged 返回本会话写入过的路径，保持首次写入顺序、去重。
func (c *Cache) Staged() []string {
	out := make([]string, len(c.staged))
	copy(out, c.staged)
	return out
}

// Dirty 报告是否存在待刷盘的结构性变更。
func (c *Cache) Dirty() bool {
	return c.dirty
}

// Len 返回条目数。
func (c *Cache) Len() int {
	return len(c.entries)
}

// Bytes 将当前容器序列化为 zip 字节流，条目按路径排序以保证稳定输出。
func (c *Cache) Bytes() ([]byte, error) {
	return c.encode()
}

func (c *Cache) encode() ([]byte, error) {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var out bytes.Buffer
	writer := zip.NewWriter(&out)
	for _, name := range names {
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: c.modTimes[name],
		}
		w, err := writer.CreateHeader(header)
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("写入条目 %s 失败: %w", name, err)
		}
		if _, err := w.Write(c.entries[name]); err != nil {
			writer.Close()
			return nil, fmt.Errorf("写入条目 %s 失败: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("收尾 zip 失败: %w", err)
	}
	return out.Bytes(), nil
}

// Flush 将变更落盘：写临时文件后原子 rename，失败时清理临时文件。
// 没有变更时是空操作。
func (c *Cache) Flush() error {
	if c.closed {
		return ErrClosed
	}
	if !c.dirty {
		return nil
	}

	data, err := c.encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tempName := tempFile.Name()

	_, werr := tempFile.Write(data)
	cerr := tempFile.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tempName)
		return fmt.Errorf("写入临时文件失败: %w", werr)
	}

	if err := os.Rename(tempName, c.filePath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("替换缓存文件失败: %w", err)
	}

	c.dirty = false
	return nil
}

// Close 刷盘并释放句柄；可重复调用，零写入时不产生文件变更。
func (c *Cache) Close() error {
	if c.closed {
		return nil
	}
	if err := c.Flush(); err != nil {
		return err
	}
	c.closed = true
	return nil
}

// FilePath 返回底层缓存文件位置，供会话日志引用。
func (c *Cache) FilePath() string {
	return c.filePath
}
