package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/h0rv/finsight/internal/domain"
)

// OpenInsightStream starts an insight generation and returns the raw
// response. The body is a chunked stream of "data: <json>" frames on 2xx
// and a JSON {"message"} document otherwise; the caller owns resp.Body.
// Only the context bounds the request, so long analyses are not cut off.
func (c *Client) OpenInsightStream(ctx context.Context, kind domain.InsightKind) (*http.Response, error) {
	body := struct {
		Kind domain.InsightKind `json:"kind"`
	}{Kind: kind}

	resp, err := c.makeRequest(ctx, http.MethodPost, PathGenerateInsight, body)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s insight: %w", kind, err)
	}
	return resp, nil
}
