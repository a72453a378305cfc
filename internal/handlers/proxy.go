package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"shopdash/internal/logger"
	"shopdash/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
)

type Forwarder interface {
	Forward(ctx context.Context, body []byte) ([]byte, int, error)
}

// Proxy relays storefront GraphQL requests to the Admin API with the
// server-held token. The browser never sees the token.
type Proxy struct {
	upstream Forwarder
}

func NewProxy(upstream Forwarder) *Proxy {
	return &Proxy{upstream: upstream}
}

type graphqlRequest struct {
	Query         string          `json:"query"`
	Variables     json.RawMessage `json:"variables,omitempty"`
	OperationName string          `json:"operationName,omitempty"`
}

func (p *Proxy) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.RequestContext.HTTP.Method != "POST" {
		return errResp(405, "method not allowed")
	}

	body, err := requestBody(req)
	if err != nil {
		return errResp(400, "invalid request body")
	}
	// Validated here, forwarded as sent so fields like extensions survive.
	var gql graphqlRequest
	if err := json.Unmarshal(body, &gql); err != nil || strings.TrimSpace(gql.Query) == "" {
		return errResp(400, "invalid request body: expected {query, variables}")
	}

	raw, status, err := p.upstream.Forward(ctx, body)
	if err != nil {
		if errors.Is(err, shopify.ErrMissingCredentials) {
			logger.Error(ctx).Err(err).Msg("shopify credentials not configured")
			return errResp(500, "Missing Shopify credentials")
		}
		logger.Error(ctx).Err(err).Msg("shopify fetch failed")
		return errResp(500, "Failed to fetch from Shopify")
	}
	if !json.Valid(raw) {
		logger.Error(ctx).Int("upstream_status", status).Int("bytes", len(raw)).Msg("shopify returned non-JSON body")
		return errResp(500, "Failed to fetch from Shopify")
	}
	if status < 200 || status >= 300 {
		logger.Warn(ctx).Int("upstream_status", status).Msg("shopify returned error status")
	}

	return rawJSONResp(200, raw)
}
