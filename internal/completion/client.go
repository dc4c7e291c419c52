// Package completion is the client for the external text-generation
// backend. The backend is a collaborator: this client performs one request
// and reports failure; retries are the caller's concern.
package completion

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type Request struct {
	Prompt    string `json:"prompt"`
	MaxTokens int64  `json:"max_tokens,omitempty"`
}

type Response struct {
	Text string `json:"text"`
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type client struct {
	http *resty.Client
}

func NewClient(addr string) Client {
	return &client{
		http: resty.New().
			SetBaseURL(addr).
			SetTimeout(60 * time.Second),
	}
}

func (c *client) Generate(ctx context.Context, req Request) (string, error) {
	var out Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/generate")
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("completion request status: %d", resp.StatusCode())
	}
	return out.Text, nil
}
