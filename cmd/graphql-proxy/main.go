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
	cfg := app.Init("shopdash-graphql-proxy")

	clients, err := awsclients.Load(context.Background())
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("load aws config")
	}
	client, err := app.Client(cfg, clients)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("build shopify client")
	}

	lambda.Start(handlers.Recover(handlers.NewProxy(client).Handle))
}
