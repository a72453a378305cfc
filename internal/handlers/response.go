package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"shopdash/internal/logger"

	"github.com/aws/aws-lambda-go/events"
)

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"error": msg,
	})
}

// rawJSONResp passes an already encoded JSON body through untouched.
func rawJSONResp(status int, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(body),
	}, nil
}

func attachmentResp(contentType, filename string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 200,
		Headers: map[string]string{
			"content-type":                contentType,
			"content-disposition":         `attachment; filename="` + filename + `"`,
			"access-control-allow-origin": "*",
		},
		Body: string(body),
	}, nil
}

// requestBody returns the raw body, decoding API Gateway's base64 form.
func requestBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func logRequest(ctx context.Context, req events.APIGatewayV2HTTPRequest, resp events.APIGatewayV2HTTPResponse, start time.Time) {
	ev := logger.Info(ctx)
	if resp.StatusCode >= 500 {
		ev = logger.Warn(ctx)
	}
	ev.Str("method", req.RequestContext.HTTP.Method).
		Str("path", req.RawPath).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request")
}
