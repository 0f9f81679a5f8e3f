package infra

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPProbe implementa domain.AvailabilityChecker: disponível se o GET
// responde 2xx.
type HTTPProbe struct {
	url    string
	client *resty.Client
	logger *zap.Logger
}

type HTTPProbeOption func(*HTTPProbe)

func WithHTTPClient(c *resty.Client) HTTPProbeOption {
	return func(p *HTTPProbe) {
		if c != nil {
			p.client = c
		}
	}
}

func WithProbeLogger(l *zap.Logger) HTTPProbeOption {
	return func(p *HTTPProbe) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewHTTPProbe usa timeout próprio; o gerenciador ainda aplica o dele.
func NewHTTPProbe(url string, timeout time.Duration, opts ...HTTPProbeOption) *HTTPProbe {
	p := &HTTPProbe{
		url:    url,
		client: resty.New().SetTimeout(timeout),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProbe) IsAvailable(ctx context.Context) bool {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		p.logger.Debug("http probe error", zap.String("url", p.url), zap.Error(err))
		return false
	}
	if !resp.IsSuccess() {
		p.logger.Debug("http probe non-2xx", zap.String("url", p.url), zap.Int("status", resp.StatusCode()))
		return false
	}
	return true
}
