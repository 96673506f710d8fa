package api

import (
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	TransportSettings *resty.TransportSettings

	ResponseMiddlewares []resty.ResponseMiddleware
	RequestMiddlewares  []resty.RequestMiddleware

	Logger *zap.Logger
}

var DefaultConfig = &ClientConfig{
	BaseURL: "http://localhost:8000",
	Timeout: 15 * time.Second,
	TransportSettings: &resty.TransportSettings{
		DialerTimeout:         5 * time.Second,
		DialerKeepAlive:       30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	},
}
