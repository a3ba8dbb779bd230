package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/tagconnect/pkg/resource"
)

// ListInstances lists running EC2 instances matching the server-side filters.
// Unlike the RDS cluster listing, EC2 supports tag filters natively.
func (c *Client) ListInstances(ctx context.Context, filters []ec2types.Filter) ([]resource.Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: append([]ec2types.Filter{{
			Name:   aws.String("instance-state-name"),
			Values: []string{string(ec2types.InstanceStateNameRunning)},
		}}, filters...),
	}

	var instances []resource.Instance
	for {
		output, err := c.ec2Client.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				instances = append(instances, convertEC2Instance(instance))
			}
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	return instances, nil
}

func convertEC2Instance(instance ec2types.Instance) resource.Instance {
	i := resource.Instance{
		ID:           aws.ToString(instance.InstanceId),
		Name:         extractNameTag(instance.Tags),
		InstanceType: string(instance.InstanceType),
		PrivateIP:    aws.ToString(instance.PrivateIpAddress),
		PublicIP:     aws.ToString(instance.PublicIpAddress),
		Labels:       make(map[string]string, len(instance.Tags)),
	}
	if instance.State != nil {
		i.State = string(instance.State.Name)
	}
	for _, tag := range instance.Tags {
		i.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return i
}

// extractNameTag extracts the Name tag from EC2 tags.
func extractNameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
