package main

import (
	"context"

	"shopdash/internal/app"
	"shopdash/internal/awsclients"
	"shopdash/internal/handlers"
	"shopdash/internal/logger"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	cfg := app.Init("shopdash-dashboard")
	ctx := context.Background()

	clients, err := awsclients.Load(ctx)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("load aws config")
	}
	exec, err := app.Executor(ctx, cfg, clients)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("build shopify executor")
	}

	var uploader handlers.Uploader
	if u := app.Uploader(cfg, clients); u != nil {
		uploader = u
	}
	var notifier handlers.LowStockNotifier
	if n := app.Notifier(cfg, clients); n != nil {
		notifier = n
	}

	d := handlers.NewDashboard(exec, uploader, notifier, handlers.DashboardOptions{
		ShopDomain:        cfg.Shopify.StoreDomain,
		PageSize:          cfg.Dashboard.PageSize,
		OrdersPageSize:    cfg.Dashboard.OrdersPageSize,
		MaxPages:          cfg.Dashboard.MaxPages,
		LowStockThreshold: cfg.Dashboard.LowStockThreshold,
		MaxAge:            cfg.Cache.TTL,
		MaxWindows:        cfg.Dashboard.MaxWindows,
	})
	lambda.Start(handlers.Recover(d.Handle))
}
