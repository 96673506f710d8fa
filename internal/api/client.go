package api

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"resty.dev/v3"
)

const headerRequestID = "X-Request-ID"

// Client talks to the PairPost REST API. A Client without a token can only
// reach the public auth endpoints; use WithToken for everything else.
type Client struct {
	client *resty.Client
	logger *zap.Logger
	token  string
}

func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig
	}

	settings := config.TransportSettings
	if settings == nil {
		settings = DefaultConfig.TransportSettings
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig.Timeout
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.NewWithTransportSettings(settings).
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetError(&errorBody{}).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	client.AddRequestMiddleware(requestIDMiddleware)
	for _, m := range config.RequestMiddlewares {
		client.AddRequestMiddleware(m)
	}

	client.AddResponseMiddleware(metricMiddleware)
	client.AddResponseMiddleware(logMiddleware(logger))
	for _, m := range config.ResponseMiddlewares {
		client.AddResponseMiddleware(m)
	}

	return &Client{
		client: client,
		logger: logger,
	}
}

// WithToken returns a client sharing the same transport that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

func (c *Client) Token() string {
	return c.token
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) r(ctx context.Context) *resty.Request {
	req := c.client.R().WithContext(ctx)
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	return req
}

func requestIDMiddleware(_ *resty.Client, req *resty.Request) error {
	if req.Header.Get(headerRequestID) == "" {
		req.SetHeader(headerRequestID, uuid.NewString())
	}
	return nil
}

func logMiddleware(logger *zap.Logger) resty.ResponseMiddleware {
	return func(_ *resty.Client, res *resty.Response) error {
		logger.Debug("API call",
			zap.String("method", res.Request.Method),
			zap.String("url", res.Request.URL),
			zap.Int("status", res.StatusCode()),
			zap.Duration("duration", res.Duration()),
			zap.String("request_id", res.Request.Header.Get(headerRequestID)))
		return nil
	}
}
