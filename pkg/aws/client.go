/*
Copyright 2025 The Skiff Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package aws

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/pkg/errors"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
)

// ManagedTag marks resources created by skiff so that teardown never touches
// anything the operator created by other means.
const ManagedTag = "skiff-managed"

type AWSClient struct {
	EC2 ec2iface.EC2API
}

var _ Interface = &AWSClient{}

// NewAWSClient initializes the AWS SDK client for the provided region.
// Credentials come from the environment or the shared config, both of which
// may have been populated from an env file beforehand.
func NewAWSClient(_ context.Context, region string) (AWSClient, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return AWSClient{}, errors.Wrap(err, "failed to create AWS session")
	}

	return AWSClient{
		EC2: ec2.New(sess),
	}, nil
}

// RequestFleet asks the provider for a single instance through an instant
// fleet request built from a launch template plus overrides. It returns the
// handle of the fulfilled instance.
func (s *AWSClient) RequestFleet(ctx context.Context, params RequestFleetParams) (instance.Handle, error) {
	spec := &ec2.FleetLaunchTemplateSpecificationRequest{}
	switch {
	case params.LaunchTemplateID != "":
		spec.LaunchTemplateId = aws.String(params.LaunchTemplateID)
	case params.LaunchTemplateName != "":
		spec.LaunchTemplateName = aws.String(params.LaunchTemplateName)
	default:
		return "", errors.New("launch template ID or name not provided")
	}
	version := params.LaunchTemplateVersion
	if version == "" {
		version = "$Latest"
	}
	spec.Version = aws.String(version)

	config := &ec2.FleetLaunchTemplateConfigRequest{
		LaunchTemplateSpecification: spec,
	}
	override := &ec2.FleetLaunchTemplateOverridesRequest{}
	var hasOverride bool
	if params.InstanceType != "" {
		override.InstanceType = aws.String(params.InstanceType)
		hasOverride = true
	}
	if params.SubnetID != "" {
		override.SubnetId = aws.String(params.SubnetID)
		hasOverride = true
	}
	if params.AvailabilityZone != "" {
		override.AvailabilityZone = aws.String(params.AvailabilityZone)
		hasOverride = true
	}
	if hasOverride {
		config.Overrides = []*ec2.FleetLaunchTemplateOverridesRequest{override}
	}

	capacityType := ec2.DefaultTargetCapacityTypeOnDemand
	if params.Spot {
		capacityType = ec2.DefaultTargetCapacityTypeSpot
	}

	input := &ec2.CreateFleetInput{
		Type:                  aws.String(ec2.FleetTypeInstant),
		LaunchTemplateConfigs: []*ec2.FleetLaunchTemplateConfigRequest{config},
		TargetCapacitySpecification: &ec2.TargetCapacitySpecificationRequest{
			TotalTargetCapacity:       aws.Int64(1),
			DefaultTargetCapacityType: aws.String(capacityType),
		},
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeInstance),
				Tags: []*ec2.Tag{
					{Key: aws.String("Name"), Value: aws.String(params.Name)},
					{Key: aws.String(ManagedTag), Value: aws.String("true")},
				},
			},
		},
	}
	if params.ClientToken != "" {
		input.ClientToken = aws.String(params.ClientToken)
	}

	output, err := s.EC2.CreateFleetWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to create fleet")
	}

	for _, fleetInstance := range output.Instances {
		if len(fleetInstance.InstanceIds) > 0 {
			return instance.Handle(aws.StringValue(fleetInstance.InstanceIds[0])), nil
		}
	}

	if len(output.Errors) > 0 {
		fleetErr := output.Errors[0]
		return "", errors.Errorf("fleet request not fulfilled: %s: %s",
			aws.StringValue(fleetErr.ErrorCode), aws.StringValue(fleetErr.ErrorMessage))
	}

	return "", errors.New("fleet request returned no instances")
}

// DescribeInstanceStatus fetches a fresh snapshot of all three status axes in
// one call. A brand new instance may not be visible in the status API yet; in
// that case every axis reads unknown rather than failing the query.
func (s *AWSClient) DescribeInstanceStatus(ctx context.Context, handle instance.Handle) (instance.StatusSnapshot, error) {
	output, err := s.EC2.DescribeInstanceStatusWithContext(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds:         []*string{aws.String(handle.String())},
		IncludeAllInstances: aws.Bool(true),
	})
	if err != nil {
		return instance.UnknownSnapshot(), err
	}

	if len(output.InstanceStatuses) == 0 {
		return instance.UnknownSnapshot(), nil
	}

	status := output.InstanceStatuses[0]
	snapshot := instance.UnknownSnapshot()
	if status.InstanceState != nil {
		snapshot.Lifecycle = instance.ParseLifecycleState(aws.StringValue(status.InstanceState.Name))
	}
	if status.SystemStatus != nil {
		snapshot.System = instance.ParseHealthStatus(aws.StringValue(status.SystemStatus.Status))
	}
	if status.InstanceStatus != nil {
		snapshot.Instance = instance.ParseHealthStatus(aws.StringValue(status.InstanceStatus.Status))
	}

	return snapshot, nil
}

func (s *AWSClient) FindInstanceByID(ctx context.Context, handle instance.Handle) (*ec2.Instance, error) {
	output, err := s.EC2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []*string{aws.String(handle.String())},
	})
	if err != nil {
		if awserrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	for _, reservation := range output.Reservations {
		for _, inst := range reservation.Instances {
			if aws.StringValue(inst.InstanceId) == handle.String() {
				return inst, nil
			}
		}
	}

	return nil, nil
}

func (s *AWSClient) IsManagedInstance(ctx context.Context, handle instance.Handle) (bool, error) {
	inst, err := s.FindInstanceByID(ctx, handle)
	if err != nil {
		return false, err
	}
	if inst == nil {
		return false, nil
	}

	for _, tag := range inst.Tags {
		if aws.StringValue(tag.Key) == ManagedTag && aws.StringValue(tag.Value) == "true" {
			return true, nil
		}
	}

	return false, nil
}

func (s *AWSClient) TerminateInstance(ctx context.Context, handle instance.Handle) error {
	_, err := s.EC2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []*string{aws.String(handle.String())},
	})
	if err != nil {
		return errors.Wrap(err, "failed to terminate EC2 instance")
	}
	return nil
}

// ListInstances returns every instance carrying the managed tag, in any
// lifecycle state.
func (s *AWSClient) ListInstances(ctx context.Context) ([]*ec2.Instance, error) {
	output, err := s.EC2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("tag:" + ManagedTag), Values: aws.StringSlice([]string{"true"})},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list instances")
	}

	var instances []*ec2.Instance
	for _, reservation := range output.Reservations {
		instances = append(instances, reservation.Instances...)
	}
	return instances, nil
}

// DescribeVolume classifies the availability of a persistent volume. A
// missing volume is a state, not an error, so the launch flow can warn and
// move on.
func (s *AWSClient) DescribeVolume(ctx context.Context, volumeID string) (instance.VolumeState, error) {
	output, err := s.EC2.DescribeVolumesWithContext(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []*string{aws.String(volumeID)},
	})
	if err != nil {
		if awserrors.IsNotFound(err) {
			return instance.VolumeMissing, nil
		}
		return instance.VolumeUnknown, errors.Wrapf(err, "failed to describe volume %s", volumeID)
	}

	if len(output.Volumes) == 0 {
		return instance.VolumeMissing, nil
	}

	switch aws.StringValue(output.Volumes[0].State) {
	case ec2.VolumeStateAvailable:
		return instance.VolumeAvailable, nil
	case ec2.VolumeStateInUse:
		return instance.VolumeInUse, nil
	default:
		return instance.VolumeUnknown, nil
	}
}

func (s *AWSClient) AttachVolume(ctx context.Context, handle instance.Handle, volumeID, device string) error {
	_, err := s.EC2.AttachVolumeWithContext(ctx, &ec2.AttachVolumeInput{
		Device:     aws.String(device),
		InstanceId: aws.String(handle.String()),
		VolumeId:   aws.String(volumeID),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to attach volume %s to instance %s", volumeID, handle)
	}
	return nil
}

func (s *AWSClient) FindSecurityGroupByName(ctx context.Context, name string) (*ec2.SecurityGroup, error) {
	output, err := s.EC2.DescribeSecurityGroupsWithContext(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("group-name"), Values: aws.StringSlice([]string{name})},
		},
	})
	if err != nil {
		if awserrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to describe Security Group")
	}

	if len(output.SecurityGroups) == 0 {
		return nil, nil
	}
	return output.SecurityGroups[0], nil
}

// CreateSecurityGroup creates a new Security Group, in the given VPC when one
// is specified, and returns its ID.
func (s *AWSClient) CreateSecurityGroup(ctx context.Context, vpcID, name string) (string, error) {
	input := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("Security Group managed by skiff"),
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeSecurityGroup),
				Tags: []*ec2.Tag{
					{Key: aws.String("Name"), Value: aws.String(name)},
					{Key: aws.String(ManagedTag), Value: aws.String("true")},
				},
			},
		},
	}
	if vpcID != "" {
		input.VpcId = aws.String(vpcID)
	}

	output, err := s.EC2.CreateSecurityGroupWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to create Security Group")
	}
	return aws.StringValue(output.GroupId), nil
}

// AuthorizeSSHIngress adds an SSH ingress rule to the specified Security Group.
func (s *AWSClient) AuthorizeSSHIngress(ctx context.Context, sgID string) error {
	_, err := s.EC2.AuthorizeSecurityGroupIngressWithContext(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(sgID),
		IpPermissions: []*ec2.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int64(22),
				ToPort:     aws.Int64(22),
				IpRanges: []*ec2.IpRange{
					{CidrIp: aws.String("0.0.0.0/0"), Description: aws.String("Allow SSH from anywhere")},
				},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to add ingress rule to Security Group")
	}
	return nil
}
