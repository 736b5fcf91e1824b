package github

import (
	"net"
	"net/http"
	"time"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewHTTPClient 返回共享 http.Client，用于所有远端 API 请求。
// readTimeout 覆盖整个请求周期；connectTimeout 仅作用于建连。
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := defaultTransport.Clone()
	if connectTimeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	timeout := 60 * time.Second
	if readTimeout > 0 {
		timeout = readTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// 重定向统一走 followRedirects 手动处理，便于控制跳数与凭证转发。
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
