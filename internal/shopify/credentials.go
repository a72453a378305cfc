package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"shopdash/internal/security"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const DefaultAPIVersion = "2024-04"

type Credentials struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
}

func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.ShopDomain) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// Endpoint is the Admin GraphQL URL. Any scheme on the configured domain is dropped.
func (c Credentials) Endpoint() string {
	domain := strings.TrimSpace(c.ShopDomain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimRight(domain, "/")

	version := strings.TrimSpace(c.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, version)
}

// CredentialSource resolves the server-held store credentials.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// EnvSource holds credentials read from the environment. The token is either
// plain or AES-GCM encrypted under KeyB64.
type EnvSource struct {
	ShopDomain     string
	APIVersion     string
	AccessToken    string
	AccessTokenEnc string
	KeyB64         string
}

func (s EnvSource) Credentials(_ context.Context) (Credentials, error) {
	token := strings.TrimSpace(s.AccessToken)
	if token == "" && strings.TrimSpace(s.AccessTokenEnc) != "" {
		plain, err := security.DecryptToken(s.KeyB64, s.AccessTokenEnc)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
		}
		token = plain
	}

	c := Credentials{ShopDomain: s.ShopDomain, AccessToken: token, APIVersion: s.APIVersion}
	if !c.Valid() {
		return Credentials{}, ErrMissingCredentials
	}
	return c, nil
}

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads the access token from a SecureString parameter and keeps it
// for the life of the process once fetched. A parameter that does not exist
// is missing credentials; any other SSM failure is returned as is.
type SSMSource struct {
	Client     SSMAPI
	Parameter  string
	ShopDomain string
	APIVersion string

	mu    sync.Mutex
	token string
}

func (s *SSMSource) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		name := strings.TrimSpace(s.Parameter)
		if name == "" || strings.TrimSpace(s.ShopDomain) == "" {
			return Credentials{}, ErrMissingCredentials
		}
		out, err := s.Client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				return Credentials{}, fmt.Errorf("%w: ssm parameter %s not found", ErrMissingCredentials, name)
			}
			return Credentials{}, fmt.Errorf("ssm get parameter %s: %w", name, err)
		}
		if out.Parameter == nil || strings.TrimSpace(aws.ToString(out.Parameter.Value)) == "" {
			return Credentials{}, ErrMissingCredentials
		}
		s.token = strings.TrimSpace(aws.ToString(out.Parameter.Value))
	}

	return Credentials{ShopDomain: s.ShopDomain, AccessToken: s.token, APIVersion: s.APIVersion}, nil
}

type DynamoGetAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// IntegrationItem is the stored connection record for one shop.
// PK = SHOPIFY#<shopDomain>, SK = INTEGRATION
type IntegrationItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	Shop           string `dynamodbav:"Shop"`
	AccessTokenEnc string `dynamodbav:"AccessTokenEnc"`
	Scope          string `dynamodbav:"Scope"`
	CreatedAt      string `dynamodbav:"CreatedAt"`
}

// DynamoSource loads the encrypted token from the integrations table written
// when the shop was connected.
type DynamoSource struct {
	Client     DynamoGetAPI
	Table      string
	ShopDomain string
	APIVersion string
	KeyB64     string
}

func (s DynamoSource) Credentials(ctx context.Context) (Credentials, error) {
	if strings.TrimSpace(s.Table) == "" {
		return Credentials{}, fmt.Errorf("%w: INTEGRATIONS_TABLE not configured", ErrMissingCredentials)
	}
	shop := strings.ToLower(strings.TrimSpace(s.ShopDomain))
	if shop == "" {
		return Credentials{}, fmt.Errorf("%w: missing shop domain", ErrMissingCredentials)
	}

	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "SHOPIFY#" + shop},
			"SK": &types.AttributeValueMemberS{Value: "INTEGRATION"},
		},
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("load integration: %w", err)
	}
	if out.Item == nil {
		return Credentials{}, fmt.Errorf("%w: shop not connected: %s", ErrMissingCredentials, shop)
	}

	var integ IntegrationItem
	if err := attributevalue.UnmarshalMap(out.Item, &integ); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}
	if strings.TrimSpace(integ.AccessTokenEnc) == "" {
		return Credentials{}, fmt.Errorf("%w: no AccessTokenEnc on record", ErrMissingCredentials)
	}

	token, err := security.DecryptToken(s.KeyB64, integ.AccessTokenEnc)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	return Credentials{ShopDomain: s.ShopDomain, AccessToken: token, APIVersion: s.APIVersion}, nil
}
