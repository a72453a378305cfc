package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopdash/internal/analytics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

var ErrNoTopic = errors.New("ALERTS_TOPIC_ARN not configured")

const maxLines = 50

type SNSPublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	client   SNSPublishAPI
	topicArn string
	now      func() time.Time
}

func NewNotifier(client SNSPublishAPI, topicArn string) *Notifier {
	return &Notifier{client: client, topicArn: strings.TrimSpace(topicArn), now: time.Now}
}

type Result struct {
	MessageID string `json:"messageId,omitempty"`
	LowStock  int    `json:"lowStock"`
	Published bool   `json:"published"`
}

// NotifyLowStock publishes one message listing the low-stock rows of listing.
// Nothing is sent when no row is low.
func (n *Notifier) NotifyLowStock(ctx context.Context, shop string, listing []analytics.InventoryItem, threshold int) (Result, error) {
	if n == nil || n.topicArn == "" {
		return Result{}, ErrNoTopic
	}

	low := analytics.LowStockRows(listing)
	if len(low) == 0 {
		return Result{}, nil
	}

	subject, body := buildMessage(shop, low, threshold, n.now())
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return Result{LowStock: len(low)}, fmt.Errorf("sns publish: %w", err)
	}
	return Result{MessageID: aws.ToString(out.MessageId), LowStock: len(low), Published: true}, nil
}

func buildMessage(shop string, low []analytics.InventoryItem, threshold int, now time.Time) (subject string, body string) {
	// SNS email subjects are capped at 100 characters.
	subject = fmt.Sprintf("Low stock: %d variants (%s)", len(low), shop)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	lines := []string{
		"Low Stock Report",
		"",
		fmt.Sprintf("Shop: %s", shop),
		fmt.Sprintf("Threshold: %d", threshold),
		fmt.Sprintf("Variants at or below threshold: %d", len(low)),
		"",
	}
	for i, r := range low {
		if i == maxLines {
			lines = append(lines, fmt.Sprintf("... and %d more", len(low)-maxLines))
			break
		}
		name := r.ProductTitle
		if r.VariantTitle != "" && r.VariantTitle != "Default Title" {
			name += " / " + r.VariantTitle
		}
		line := fmt.Sprintf("- %s: %d", name, *r.InventoryQuantity)
		if r.SKU != nil && *r.SKU != "" {
			line += fmt.Sprintf(" (SKU %s)", *r.SKU)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", fmt.Sprintf("GeneratedAt: %s", now.UTC().Format(time.RFC3339)))

	return subject, strings.Join(lines, "\n")
}
