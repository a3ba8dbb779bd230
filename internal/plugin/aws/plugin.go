// Package aws implements the AWS backend used by the tagconnect connectors.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// DefaultRegion is used when neither flags, config nor environment name a region.
const DefaultRegion = "us-east-2"

// Client wraps the AWS service clients used by the connectors.
type Client struct {
	region string

	// AWS clients (interfaces for testability)
	rdsClient     RDSAPI
	ec2Client     EC2API
	secretsClient SecretsManagerAPI
	stsClient     STSAPI

	credentials aws.CredentialsProvider
	buildToken  func(ctx context.Context, endpoint, region, user string, creds aws.CredentialsProvider, optFns ...func(*rdsauth.BuildAuthTokenOptions)) (string, error)
}

// Config holds AWS client configuration.
type Config struct {
	Region  string
	Profile string // empty uses the default credential chain
}

// New loads the shared AWS configuration and creates the service clients.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Client{
		region:        awsCfg.Region,
		rdsClient:     rds.NewFromConfig(awsCfg),
		ec2Client:     ec2.NewFromConfig(awsCfg),
		secretsClient: secretsmanager.NewFromConfig(awsCfg),
		stsClient:     sts.NewFromConfig(awsCfg),
		credentials:   awsCfg.Credentials,
		buildToken:    rdsauth.BuildAuthToken,
	}, nil
}

// Region returns the region the clients talk to.
func (c *Client) Region() string {
	return c.region
}

// Identity describes the caller the credentials resolve to.
type Identity struct {
	Account string
	ARN     string
}

// Identity returns the caller identity of the loaded credentials.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	output, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return Identity{
		Account: aws.ToString(output.Account),
		ARN:     aws.ToString(output.Arn),
	}, nil
}

// AuthToken generates an RDS IAM authentication token for user at host:port.
// The token is valid for 15 minutes and is not refreshed.
func (c *Client) AuthToken(ctx context.Context, host string, port int32, user string) (string, error) {
	endpoint := host + ":" + strconv.Itoa(int(port))
	token, err := c.buildToken(ctx, endpoint, c.region, user, c.credentials)
	if err != nil {
		return "", fmt.Errorf("build auth token: %w", err)
	}
	return token, nil
}

// SecretString fetches the string value of a Secrets Manager secret.
func (c *Client) SecretString(ctx context.Context, secretID string) (string, error) {
	output, err := c.secretsClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	return aws.ToString(output.SecretString), nil
}

// ErrorCode returns the AWS API error code carried by err, or "" if none.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
