package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RemoteFields 提供远端调用通用字段，供协议层与弹性层日志复用。
func RemoteFields(op, endpoint, resource string) logrus.Fields {
	return logrus.Fields{
		"op":       op,
		"endpoint": endpoint,
		"resource": resource,
	}
}

// SessionFields 提供会话级字段：端点身份、缓存键与鉴权模式。
func SessionFields(endpoint, cacheKey, authMode string) logrus.Fields {
	return logrus.Fields{
		"endpoint":  endpoint,
		"cache_key": cacheKey,
		"auth_mode": authMode,
	}
}
