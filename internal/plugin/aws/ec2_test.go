package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEC2Client implements EC2API for testing.
type mockEC2Client struct {
	DescribeInstancesFunc func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

func (m *mockEC2Client) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if m.DescribeInstancesFunc != nil {
		return m.DescribeInstancesFunc(ctx, params, optFns...)
	}
	return &ec2.DescribeInstancesOutput{}, nil
}

func TestListInstances(t *testing.T) {
	var gotFilters []types.Filter
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			gotFilters = params.Filters
			return &ec2.DescribeInstancesOutput{
				Reservations: []types.Reservation{{
					Instances: []types.Instance{{
						InstanceId:       aws.String("i-abc123"),
						InstanceType:     types.InstanceTypeT3Micro,
						State:            &types.InstanceState{Name: types.InstanceStateNameRunning},
						PrivateIpAddress: aws.String("10.0.1.5"),
						Tags: []types.Tag{
							{Key: aws.String("Name"), Value: aws.String("web-1")},
							{Key: aws.String("Environment"), Value: aws.String("prod")},
						},
					}},
				}},
			}, nil
		},
	}

	c := &Client{ec2Client: mock}
	instances, err := c.ListInstances(context.Background(), []types.Filter{
		{Name: aws.String("tag:Environment"), Values: []string{"prod"}},
	})

	require.NoError(t, err)
	require.Len(t, instances, 1)

	i := instances[0]
	assert.Equal(t, "i-abc123", i.ID)
	assert.Equal(t, "web-1", i.Name)
	assert.Equal(t, "running", i.State)
	assert.Equal(t, "t3.micro", i.InstanceType)
	assert.Equal(t, "10.0.1.5", i.PrivateIP)
	assert.Empty(t, i.PublicIP)
	assert.Equal(t, "prod", i.Labels["Environment"])

	require.Len(t, gotFilters, 2)
	assert.Equal(t, "instance-state-name", aws.ToString(gotFilters[0].Name))
	assert.Equal(t, "tag:Environment", aws.ToString(gotFilters[1].Name))
}

func TestListInstances_Paginates(t *testing.T) {
	calls := 0
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			calls++
			if params.NextToken == nil {
				return &ec2.DescribeInstancesOutput{
					Reservations: []types.Reservation{{Instances: []types.Instance{{InstanceId: aws.String("i-1")}}}},
					NextToken:    aws.String("next"),
				}, nil
			}
			return &ec2.DescribeInstancesOutput{
				Reservations: []types.Reservation{{Instances: []types.Instance{{InstanceId: aws.String("i-2")}}}},
			}, nil
		},
	}

	instances, err := (&Client{ec2Client: mock}).ListInstances(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, instances, 2)
	assert.Equal(t, 2, calls)
}

func TestListInstances_Error(t *testing.T) {
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			return nil, errors.New("UnauthorizedOperation")
		},
	}

	_, err := (&Client{ec2Client: mock}).ListInstances(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnauthorizedOperation")
}

func TestExtractNameTag(t *testing.T) {
	tests := []struct {
		name string
		tags []types.Tag
		want string
	}{
		{"found", []types.Tag{{Key: aws.String("Name"), Value: aws.String("my-instance")}}, "my-instance"},
		{"not found", []types.Tag{{Key: aws.String("env"), Value: aws.String("prod")}}, ""},
		{"empty", []types.Tag{}, ""},
		{"multiple tags", []types.Tag{{Key: aws.String("env"), Value: aws.String("prod")}, {Key: aws.String("Name"), Value: aws.String("web-1")}}, "web-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractNameTag(tt.tags)
			assert.Equal(t, tt.want, got)
		})
	}
}
