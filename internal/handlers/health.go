package handlers

import (
	"strings"

	"shopdash/internal/config"

	"github.com/aws/aws-lambda-go/events"
)

type HealthResponse struct {
	OK               bool   `json:"ok"`
	Service          string `json:"service"`
	ShopConfigured   bool   `json:"shopConfigured"`
	CredentialSource string `json:"credentialSource"`
	CacheBackend     string `json:"cacheBackend"`
	ExportsEnabled   bool   `json:"exportsEnabled"`
	AlertsEnabled    bool   `json:"alertsEnabled"`
}

// Health reports which optional pieces are configured. It never calls out.
func Health(cfg config.Config) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(200, HealthResponse{
		OK:               true,
		Service:          "shopdash",
		ShopConfigured:   strings.TrimSpace(cfg.Shopify.StoreDomain) != "",
		CredentialSource: cfg.Shopify.CredentialSource,
		CacheBackend:     cfg.Cache.Backend,
		ExportsEnabled:   cfg.ExportBucket != "",
		AlertsEnabled:    cfg.AlertsTopicArn != "",
	})
}
