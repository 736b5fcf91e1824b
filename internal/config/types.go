package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有端点共享同一份弹性参数。
// 熔断器与限流器按进程共享属于刻意设计：配额是按凭证计的，不是按仓库。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	CachePath  string `mapstructure:"CachePath"`
	APIBase    string `mapstructure:"APIBase"`
	UploadBase string `mapstructure:"UploadBase"`
	Token      string `mapstructure:"Token"`
	TokenFile  string `mapstructure:"TokenFile"`

	MaxRetries     int      `mapstructure:"MaxRetries"`
	InitialBackoff Duration `mapstructure:"InitialBackoff"`
	MaxBackoff     Duration `mapstructure:"MaxBackoff"`
	ConnectTimeout Duration `mapstructure:"ConnectTimeout"`
	ReadTimeout    Duration `mapstructure:"ReadTimeout"`
	MaxRedirects   int      `mapstructure:"MaxRedirects"`

	FailureThreshold int      `mapstructure:"FailureThreshold"`
	Cooldown         Duration `mapstructure:"Cooldown"`
	SuccessThreshold int      `mapstructure:"SuccessThreshold"`
	RateWaitCeiling  Duration `mapstructure:"RateWaitCeiling"`
}

// RepositoryConfig 定义一个远端仓库端点，Endpoint 形如
// ghr://owner/repo/tag/assetName.zip。
type RepositoryConfig struct {
	Name     string `mapstructure:"Name"`
	Endpoint string `mapstructure:"Endpoint"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global       GlobalConfig       `mapstructure:",squash"`
	Repositories []RepositoryConfig `mapstructure:"Repository"`
}

// Credential 解析最终生效的 Bearer 凭证：优先取字面 Token，
// 其次读取 TokenFile 指向的文件；两者皆空时返回空串（匿名只读）。
func (g GlobalConfig) Credential() (string, error) {
	if token := strings.TrimSpace(g.Token); token != "" {
		return token, nil
	}
	if g.TokenFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(g.TokenFile)
	if err != nil {
		return "", fmt.Errorf("读取凭证文件失败: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("凭证文件为空: %s", g.TokenFile)
	}
	return token, nil
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (g GlobalConfig) AuthMode() string {
	if g.Token != "" || g.TokenFile != "" {
		return "credentialed"
	}
	return "anonymous"
}

// Repository 按名称查找端点配置。
func (c *Config) Repository(name string) (RepositoryConfig, bool) {
	for _, repo := range c.Repositories {
		if repo.Name == name {
			return repo, true
		}
	}
	return RepositoryConfig{}, false
}
