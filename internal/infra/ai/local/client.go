package local

import (
	"context"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/ai/prompt"
)

// Client menghasilkan advice dari aturan lokal, dipakai saat API key tidak diset.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) Advise(_ context.Context, rec *domain.ModelScan) (string, error) {
	return prompt.BuildLocalAdvice(rec), nil
}
