package main

import (
	"context"

	"shopdash/internal/app"
	"shopdash/internal/handlers"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	cfg := app.Init("shopdash-health")
	lambda.Start(handlers.Recover(func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handlers.Health(cfg)
	}))
}
