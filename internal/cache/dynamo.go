package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const dynamoPK = "GQLCACHE"

type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps entries as PK=GQLCACHE, SK=<key> rows. ExpiresAt doubles
// as the table TTL attribute; reads also check it since TTL deletion lags.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

func (d *DynamoStore) itemKey(key string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK": &ddbtypes.AttributeValueMemberS{Value: dynamoPK},
		"SK": &ddbtypes.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            d.itemKey(key),
		ConsistentRead: aws.Bool(false),
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	if expAttr, ok := out.Item["ExpiresAt"].(*ddbtypes.AttributeValueMemberN); ok {
		exp, err := strconv.ParseInt(expAttr.Value, 10, 64)
		if err == nil && exp > 0 && d.now().Unix() >= exp {
			return nil, false, nil
		}
	}

	payload, ok := out.Item["Payload"].(*ddbtypes.AttributeValueMemberB)
	if !ok {
		return nil, false, nil
	}
	return payload.Value, true, nil
}

func (d *DynamoStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	now := d.now().UTC().Unix()
	item := d.itemKey(key)
	item["Payload"] = &ddbtypes.AttributeValueMemberB{Value: val}
	item["CreatedAt"] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)}
	if ttl > 0 {
		exp := now + int64(ttl/time.Second)
		item["ExpiresAt"] = &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)}
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("cache PutItem: %w", err)
	}
	return nil
}

func (d *DynamoStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(d.table),
			Key:       d.itemKey(k),
		})
		if err != nil {
			return fmt.Errorf("cache DeleteItem: %w", err)
		}
	}
	return nil
}

func (d *DynamoStore) Clear(ctx context.Context) error {
	var start map[string]ddbtypes.AttributeValue
	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.table),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: dynamoPK},
			},
			ProjectionExpression: aws.String("SK"),
			ExclusiveStartKey:    start,
		})
		if err != nil {
			return fmt.Errorf("cache Query: %w", err)
		}

		keys := make([]string, 0, len(out.Items))
		for _, it := range out.Items {
			if sk, ok := it["SK"].(*ddbtypes.AttributeValueMemberS); ok {
				keys = append(keys, sk.Value)
			}
		}
		if err := d.Delete(ctx, keys...); err != nil {
			return err
		}

		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		start = out.LastEvaluatedKey
	}
}
