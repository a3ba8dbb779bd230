package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSecretsClient struct {
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func (m *mockSecretsClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return m.GetSecretValueFunc(ctx, params, optFns...)
}

type mockSTSClient struct {
	GetCallerIdentityFunc func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func (m *mockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return m.GetCallerIdentityFunc(ctx, params, optFns...)
}

func TestRegion(t *testing.T) {
	c := &Client{region: "eu-west-1"}
	assert.Equal(t, "eu-west-1", c.Region())
}

func TestIdentity(t *testing.T) {
	c := &Client{stsClient: &mockSTSClient{
		GetCallerIdentityFunc: func(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
			return &sts.GetCallerIdentityOutput{
				Account: aws.String("123456789012"),
				Arn:     aws.String("arn:aws:iam::123456789012:user/ops"),
			}, nil
		},
	}}

	id, err := c.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456789012", id.Account)
	assert.Equal(t, "arn:aws:iam::123456789012:user/ops", id.ARN)
}

func TestIdentity_Error(t *testing.T) {
	c := &Client{stsClient: &mockSTSClient{
		GetCallerIdentityFunc: func(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
			return nil, errors.New("expired token")
		},
	}}

	_, err := c.Identity(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired token")
}

func TestAuthToken(t *testing.T) {
	var gotEndpoint, gotRegion, gotUser string
	c := &Client{
		region: "us-east-2",
		buildToken: func(_ context.Context, endpoint, region, user string, _ aws.CredentialsProvider, _ ...func(*rdsauth.BuildAuthTokenOptions)) (string, error) {
			gotEndpoint, gotRegion, gotUser = endpoint, region, user
			return "signed-token", nil
		},
	}

	token, err := c.AuthToken(context.Background(), "db.example.com", 5432, "admin")
	require.NoError(t, err)
	assert.Equal(t, "signed-token", token)
	assert.Equal(t, "db.example.com:5432", gotEndpoint)
	assert.Equal(t, "us-east-2", gotRegion)
	assert.Equal(t, "admin", gotUser)
}

func TestAuthToken_Error(t *testing.T) {
	c := &Client{
		buildToken: func(_ context.Context, _, _, _ string, _ aws.CredentialsProvider, _ ...func(*rdsauth.BuildAuthTokenOptions)) (string, error) {
			return "", errors.New("no credentials")
		},
	}

	_, err := c.AuthToken(context.Background(), "db", 3306, "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestSecretString(t *testing.T) {
	c := &Client{secretsClient: &mockSecretsClient{
		GetSecretValueFunc: func(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			assert.Equal(t, "arn:aws:secretsmanager:us-east-2:1:secret:rds", aws.ToString(params.SecretId))
			return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"username":"admin","password":"pw"}`)}, nil
		},
	}}

	value, err := c.SecretString(context.Background(), "arn:aws:secretsmanager:us-east-2:1:secret:rds")
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"admin","password":"pw"}`, value)
}

func TestSecretString_Error(t *testing.T) {
	c := &Client{secretsClient: &mockSecretsClient{
		GetSecretValueFunc: func(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			return nil, errors.New("access denied")
		},
	}}

	_, err := c.SecretString(context.Background(), "arn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestErrorCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "not allowed"}

	assert.Equal(t, "AccessDenied", ErrorCode(apiErr))
	assert.Equal(t, "AccessDenied", ErrorCode(fmt.Errorf("describe db clusters: %w", apiErr)))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, "", ErrorCode(nil))
}
