package maven

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
)

// Checksum 是一个待写入的校验和 side-file。
type Checksum struct {
	Extension string
	Hex       string
}

// Checksums 对内容计算 MD5/SHA-1/SHA-256 三种摘要，
// 输出顺序固定，便于上层按序落盘。
func Checksums(data []byte) []Checksum {
	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	sha256Sum := sha256.Sum256(data)

	return []Checksum{
		{Extension: "md5", Hex: hex.EncodeToString(md5Sum[:])},
		{Extension: "sha1", Hex: hex.EncodeToString(sha1Sum[:])},
		{Extension: "sha256", Hex: hex.EncodeToString(sha256Sum[:])},
	}
}
