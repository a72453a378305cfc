package awsclients

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Clients builds SDK clients from one shared aws.Config. Each client is
// created on first use and reused for the life of the Lambda container.
type Clients struct {
	cfg aws.Config

	once struct {
		ddb, ssm, s3, sns sync.Once
	}
	ddb *dynamodb.Client
	ssm *ssm.Client
	s3  *s3.Client
	sns *sns.Client
}

// Load uses Lambda's execution role creds automatically.
func Load(ctx context.Context) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

func New(cfg aws.Config) *Clients {
	return &Clients{cfg: cfg}
}

func (c *Clients) DynamoDB() *dynamodb.Client {
	c.once.ddb.Do(func() { c.ddb = dynamodb.NewFromConfig(c.cfg) })
	return c.ddb
}

func (c *Clients) SSM() *ssm.Client {
	c.once.ssm.Do(func() { c.ssm = ssm.NewFromConfig(c.cfg) })
	return c.ssm
}

func (c *Clients) S3() *s3.Client {
	c.once.s3.Do(func() { c.s3 = s3.NewFromConfig(c.cfg) })
	return c.s3
}

func (c *Clients) SNS() *sns.Client {
	c.once.sns.Do(func() { c.sns = sns.NewFromConfig(c.cfg) })
	return c.sns
}
