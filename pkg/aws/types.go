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

	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

// RequestFleetParams describes what capacity to ask the provider for: a
// launch template reference plus per-launch overrides. Immutable once
// submitted.
type RequestFleetParams struct {
	Name                  string
	LaunchTemplateID      string
	LaunchTemplateName    string
	LaunchTemplateVersion string
	InstanceType          string
	SubnetID              string
	AvailabilityZone      string
	Spot                  bool
	ClientToken           string
}

type Interface interface {

	// Fleet / instance
	RequestFleet(ctx context.Context, params RequestFleetParams) (instance.Handle, error)
	DescribeInstanceStatus(ctx context.Context, handle instance.Handle) (instance.StatusSnapshot, error)
	FindInstanceByID(ctx context.Context, handle instance.Handle) (*ec2.Instance, error)
	IsManagedInstance(ctx context.Context, handle instance.Handle) (bool, error)
	TerminateInstance(ctx context.Context, handle instance.Handle) error
	ListInstances(ctx context.Context) ([]*ec2.Instance, error)

	// Volumes
	DescribeVolume(ctx context.Context, volumeID string) (instance.VolumeState, error)
	AttachVolume(ctx context.Context, handle instance.Handle, volumeID, device string) error

	// Security Group
	FindSecurityGroupByName(ctx context.Context, name string) (*ec2.SecurityGroup, error)
	CreateSecurityGroup(ctx context.Context, vpcID, name string) (string, error)
	AuthorizeSSHIngress(ctx context.Context, sgID string) error
}
