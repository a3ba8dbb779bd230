package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

// Listing is the outcome of one listing call. A failed call carries Err and
// no items; a successful call may still have zero items.
type Listing[T any] struct {
	Items []T
	Err   error
}

// Failed reports whether the listing call itself failed.
func (l Listing[T]) Failed() bool {
	return l.Err != nil
}

// ListDBInstances lists all DB instances in the region.
func (c *Client) ListDBInstances(ctx context.Context) Listing[rdstypes.DBInstance] {
	var instances []rdstypes.DBInstance
	var marker *string

	for {
		output, err := c.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		if err != nil {
			return Listing[rdstypes.DBInstance]{Err: fmt.Errorf("describe db instances: %w", err)}
		}

		instances = append(instances, output.DBInstances...)

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return Listing[rdstypes.DBInstance]{Items: instances}
}

// ListDBClusters lists all DB clusters in the region. The cluster API has no
// combined tag filter, so tag matching happens on the caller's side.
func (c *Client) ListDBClusters(ctx context.Context) Listing[rdstypes.DBCluster] {
	var clusters []rdstypes.DBCluster
	var marker *string

	for {
		output, err := c.rdsClient.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{Marker: marker})
		if err != nil {
			return Listing[rdstypes.DBCluster]{Err: fmt.Errorf("describe db clusters: %w", err)}
		}

		clusters = append(clusters, output.DBClusters...)

		if output.Marker == nil {
			break
		}
		marker = output.Marker
	}

	return Listing[rdstypes.DBCluster]{Items: clusters}
}

// DescribeTarget fetches the connection detail of a selected record.
// Port and database name are required; a record without them cannot be used.
func (c *Client) DescribeTarget(ctx context.Context, rec resource.Record) (resource.Target, error) {
	var (
		target resource.Target
		err    error
	)

	switch rec.Kind {
	case resource.Cluster:
		target, err = c.describeClusterTarget(ctx, rec.Identifier)
	default:
		target, err = c.describeInstanceTarget(ctx, rec.Identifier)
	}
	if err != nil {
		return resource.Target{}, err
	}

	// Cluster detail carries no host; the selected endpoint decides writer vs reader.
	target.Host = rec.Endpoint
	if target.Port == 0 {
		target.Port = rec.Port
	}

	if target.Port == 0 {
		return resource.Target{}, fmt.Errorf("%s: port: %w", rec.Identifier, apperrors.ErrMissingTargetField)
	}
	if target.DatabaseName == "" {
		return resource.Target{}, fmt.Errorf("%s: database name: %w", rec.Identifier, apperrors.ErrMissingTargetField)
	}

	return target, nil
}

func (c *Client) describeClusterTarget(ctx context.Context, id string) (resource.Target, error) {
	output, err := c.rdsClient.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{
		DBClusterIdentifier: aws.String(id),
	})
	if err != nil {
		return resource.Target{}, fmt.Errorf("describe db cluster %s: %w", id, err)
	}
	if len(output.DBClusters) == 0 {
		return resource.Target{}, fmt.Errorf("db cluster %s: %w", id, apperrors.ErrNoResourcesFound)
	}

	cluster := output.DBClusters[0]
	return resource.Target{
		Port:           aws.ToInt32(cluster.Port),
		DatabaseName:   aws.ToString(cluster.DatabaseName),
		MasterUsername: aws.ToString(cluster.MasterUsername),
		IAMAuthEnabled: aws.ToBool(cluster.IAMDatabaseAuthenticationEnabled),
		SecretARN:      secretARN(cluster.MasterUserSecret),
	}, nil
}

func (c *Client) describeInstanceTarget(ctx context.Context, id string) (resource.Target, error) {
	output, err := c.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		return resource.Target{}, fmt.Errorf("describe db instance %s: %w", id, err)
	}
	if len(output.DBInstances) == 0 {
		return resource.Target{}, fmt.Errorf("db instance %s: %w", id, apperrors.ErrNoResourcesFound)
	}

	instance := output.DBInstances[0]
	var port int32
	if instance.Endpoint != nil {
		port = aws.ToInt32(instance.Endpoint.Port)
	}

	return resource.Target{
		Port:           port,
		DatabaseName:   aws.ToString(instance.DBName),
		MasterUsername: aws.ToString(instance.MasterUsername),
		IAMAuthEnabled: aws.ToBool(instance.IAMDatabaseAuthenticationEnabled),
		SecretARN:      secretARN(instance.MasterUserSecret),
	}, nil
}

func secretARN(secret *rdstypes.MasterUserSecret) string {
	if secret == nil {
		return ""
	}
	return aws.ToString(secret.SecretArn)
}

// RDSLabels converts RDS tags to a label map.
func RDSLabels(tags []rdstypes.Tag) map[string]string {
	labels := make(map[string]string, len(tags))
	for _, tag := range tags {
		labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return labels
}
