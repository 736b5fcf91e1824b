package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Global.CachePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CachePath = absCache

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CachePath", "./cache")
	v.SetDefault("APIBase", "https://api.github.com")
	v.SetDefault("UploadBase", "https://uploads.github.com")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MaxBackoff", "30s")
	v.SetDefault("ConnectTimeout", "30s")
	v.SetDefault("ReadTimeout", "60s")
	v.SetDefault("MaxRedirects", 5)
	v.SetDefault("FailureThreshold", 5)
	v.SetDefault("Cooldown", "60s")
	v.SetDefault("SuccessThreshold", 3)
	v.SetDefault("RateWaitCeiling", "15m")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.MaxBackoff.DurationValue() == 0 {
		g.MaxBackoff = Duration(30 * time.Second)
	}
	if g.ConnectTimeout.DurationValue() == 0 {
		g.ConnectTimeout = Duration(30 * time.Second)
	}
	if g.ReadTimeout.DurationValue() == 0 {
		g.ReadTimeout = Duration(60 * time.Second)
	}
	if g.MaxRedirects == 0 {
		g.MaxRedirects = 5
	}
	if g.FailureThreshold == 0 {
		g.FailureThreshold = 5
	}
	if g.Cooldown.DurationValue() == 0 {
		g.Cooldown = Duration(time.Minute)
	}
	if g.SuccessThreshold == 0 {
		g.SuccessThreshold = 3
	}
	if g.RateWaitCeiling.DurationValue() == 0 {
		g.RateWaitCeiling = Duration(15 * time.Minute)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, err
			}
			return d, nil
		case int, int32, int64:
			return Duration(time.Duration(reflect.ValueOf(v).Int()) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		default:
			return data, nil
		}
	}
}
