package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// IsGzipData 通过魔数判断内容是否为 gzip 流。
func IsGzipData(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// GzipCompress 将内容压缩为 gzip 字节流。
func GzipCompress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	writer := gzip.NewWriter(&out)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip 压缩失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip 压缩失败: %w", err)
	}
	return out.Bytes(), nil
}

// GzipDecompress 解开 gzip 字节流，流不完整或校验失败时报错。
func GzipDecompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip 解压失败: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip 解压失败: %w", err)
	}
	return out, nil
}
