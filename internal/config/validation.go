package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/mvn-hub/mvn-hub/internal/endpoint"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动会话。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.CachePath == "" {
		return newFieldError("Global.CachePath", "不能为空")
	}
	if err := validateBaseURL(g.APIBase); err != nil {
		return fmt.Errorf("Global.APIBase: %w", err)
	}
	if err := validateBaseURL(g.UploadBase); err != nil {
		return fmt.Errorf("Global.UploadBase: %w", err)
	}
	if g.Token != "" && g.TokenFile != "" {
		return newFieldError("Global.Token", "与 TokenFile 互斥，只能配置一个")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.MaxBackoff.DurationValue() < g.InitialBackoff.DurationValue() {
		return newFieldError("Global.MaxBackoff", "不能小于 InitialBackoff")
	}
	if g.ConnectTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ConnectTimeout", "必须大于 0")
	}
	if g.ReadTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ReadTimeout", "必须大于 0")
	}
	if g.MaxRedirects <= 0 {
		return newFieldError("Global.MaxRedirects", "必须大于 0")
	}
	if g.FailureThreshold <= 0 {
		return newFieldError("Global.FailureThreshold", "必须大于 0")
	}
	if g.SuccessThreshold <= 0 {
		return newFieldError("Global.SuccessThreshold", "必须大于 0")
	}
	if g.Cooldown.DurationValue() <= 0 {
		return newFieldError("Global.Cooldown", "必须大于 0")
	}
	if g.RateWaitCeiling.DurationValue() <= 0 {
		return newFieldError("Global.RateWaitCeiling", "必须大于 0")
	}

	if len(c.Repositories) == 0 {
		return errors.New("至少需要配置一个 Repository")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Repositories {
		repo := &c.Repositories[i]
		if repo.Name == "" {
			return newFieldError("Repository[].Name", "不能为空")
		}
		if _, exists := seenNames[repo.Name]; exists {
			return newFieldError(repoField(repo.Name, "Name"), "重复")
		}
		seenNames[repo.Name] = struct{}{}

		if _, err := endpoint.Parse(repo.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", repoField(repo.Name, "Endpoint"), err)
		}
	}

	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无法解析: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少主机名")
	}
	return nil
}
