package intake

import (
	"context"

	"github.com/gbcenter/intake-ai/pkg/logging"
)

// FallbackLLMClient wraps a primary LLM client with a fallback provider. If
// the primary fails, the request is retried against the fallback.
type FallbackLLMClient struct {
	primary    LLMClient
	fallback   LLMClient
	logger     *logging.Logger
	onFallback func()
}

// NewFallbackLLMClient creates a fallback-enabled LLM client. A nil fallback
// means only the primary is used.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("intake: primary LLM client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

// SetFallbackHook registers a callback invoked whenever the primary fails and
// the fallback provider is attempted. Used for failover accounting.
func (c *FallbackLLMClient) SetFallbackHook(fn func()) {
	c.onFallback = fn
}

// Complete sends the request to the primary LLM, retrying on the fallback
// provider when the primary fails.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return LLMResponse{}, err
	}
	if c.onFallback != nil {
		c.onFallback()
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return LLMResponse{}, fallbackErr
	}

	return fallbackResp, nil
}
