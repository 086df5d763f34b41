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

// Package cloudtest provides in-memory fakes for the cloud client and launch
// scope, for use in service tests.
package cloudtest

import (
	"context"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	"github.com/skiff-cloud/skiff/pkg/cloud"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

// FakeClient implements the cloud client interface with overridable function
// fields and call counters. Calls without an override fail loudly so a test
// cannot silently depend on an operation it did not stub.
type FakeClient struct {
	RequestFleetFn           func(ctx context.Context, params skiffaws.RequestFleetParams) (instance.Handle, error)
	DescribeInstanceStatusFn func(ctx context.Context, handle instance.Handle) (instance.StatusSnapshot, error)
	FindInstanceByIDFn       func(ctx context.Context, handle instance.Handle) (*ec2.Instance, error)
	IsManagedInstanceFn      func(ctx context.Context, handle instance.Handle) (bool, error)
	TerminateInstanceFn      func(ctx context.Context, handle instance.Handle) error
	ListInstancesFn          func(ctx context.Context) ([]*ec2.Instance, error)
	DescribeVolumeFn         func(ctx context.Context, volumeID string) (instance.VolumeState, error)
	AttachVolumeFn           func(ctx context.Context, handle instance.Handle, volumeID, device string) error
	FindSecurityGroupFn      func(ctx context.Context, name string) (*ec2.SecurityGroup, error)
	CreateSecurityGroupFn    func(ctx context.Context, vpcID, name string) (string, error)
	AuthorizeSSHIngressFn    func(ctx context.Context, sgID string) error

	RequestFleetCalls           int
	DescribeInstanceStatusCalls int
	FindInstanceByIDCalls       int
	IsManagedInstanceCalls      int
	TerminateInstanceCalls      int
	ListInstancesCalls          int
	DescribeVolumeCalls         int
	AttachVolumeCalls           int
	FindSecurityGroupCalls      int
	CreateSecurityGroupCalls    int
	AuthorizeSSHIngressCalls    int
}

var _ skiffaws.Interface = &FakeClient{}

func (f *FakeClient) RequestFleet(ctx context.Context, params skiffaws.RequestFleetParams) (instance.Handle, error) {
	f.RequestFleetCalls++
	if f.RequestFleetFn == nil {
		return "", errors.New("unexpected call to RequestFleet")
	}
	return f.RequestFleetFn(ctx, params)
}

func (f *FakeClient) DescribeInstanceStatus(ctx context.Context, handle instance.Handle) (instance.StatusSnapshot, error) {
	f.DescribeInstanceStatusCalls++
	if f.DescribeInstanceStatusFn == nil {
		return instance.UnknownSnapshot(), errors.New("unexpected call to DescribeInstanceStatus")
	}
	return f.DescribeInstanceStatusFn(ctx, handle)
}

func (f *FakeClient) FindInstanceByID(ctx context.Context, handle instance.Handle) (*ec2.Instance, error) {
	f.FindInstanceByIDCalls++
	if f.FindInstanceByIDFn == nil {
		return nil, errors.New("unexpected call to FindInstanceByID")
	}
	return f.FindInstanceByIDFn(ctx, handle)
}

func (f *FakeClient) IsManagedInstance(ctx context.Context, handle instance.Handle) (bool, error) {
	f.IsManagedInstanceCalls++
	if f.IsManagedInstanceFn == nil {
		return false, errors.New("unexpected call to IsManagedInstance")
	}
	return f.IsManagedInstanceFn(ctx, handle)
}

func (f *FakeClient) TerminateInstance(ctx context.Context, handle instance.Handle) error {
	f.TerminateInstanceCalls++
	if f.TerminateInstanceFn == nil {
		return errors.New("unexpected call to TerminateInstance")
	}
	return f.TerminateInstanceFn(ctx, handle)
}

func (f *FakeClient) ListInstances(ctx context.Context) ([]*ec2.Instance, error) {
	f.ListInstancesCalls++
	if f.ListInstancesFn == nil {
		return nil, errors.New("unexpected call to ListInstances")
	}
	return f.ListInstancesFn(ctx)
}

func (f *FakeClient) DescribeVolume(ctx context.Context, volumeID string) (instance.VolumeState, error) {
	f.DescribeVolumeCalls++
	if f.DescribeVolumeFn == nil {
		return instance.VolumeUnknown, errors.New("unexpected call to DescribeVolume")
	}
	return f.DescribeVolumeFn(ctx, volumeID)
}

func (f *FakeClient) AttachVolume(ctx context.Context, handle instance.Handle, volumeID, device string) error {
	f.AttachVolumeCalls++
	if f.AttachVolumeFn == nil {
		return errors.New("unexpected call to AttachVolume")
	}
	return f.AttachVolumeFn(ctx, handle, volumeID, device)
}

func (f *FakeClient) FindSecurityGroupByName(ctx context.Context, name string) (*ec2.SecurityGroup, error) {
	f.FindSecurityGroupCalls++
	if f.FindSecurityGroupFn == nil {
		return nil, errors.New("unexpected call to FindSecurityGroupByName")
	}
	return f.FindSecurityGroupFn(ctx, name)
}

func (f *FakeClient) CreateSecurityGroup(ctx context.Context, vpcID, name string) (string, error) {
	f.CreateSecurityGroupCalls++
	if f.CreateSecurityGroupFn == nil {
		return "", errors.New("unexpected call to CreateSecurityGroup")
	}
	return f.CreateSecurityGroupFn(ctx, vpcID, name)
}

func (f *FakeClient) AuthorizeSSHIngress(ctx context.Context, sgID string) error {
	f.AuthorizeSSHIngressCalls++
	if f.AuthorizeSSHIngressFn == nil {
		return errors.New("unexpected call to AuthorizeSSHIngress")
	}
	return f.AuthorizeSSHIngressFn(ctx, sgID)
}

// FakeScope implements the launch scope with plain fields.
type FakeScope struct {
	Client skiffaws.Interface

	InstanceName     string
	AWSRegion        string
	Handle           instance.Handle
	TemplateID       string
	TemplateName     string
	TemplateVersion  string
	OverrideType     string
	OverrideSubnet   string
	OverrideAZ       string
	SpotCapacity     bool
	Volume           string
	Device           string
	SGName           string
	VPC              string
	Policy           instance.WaitPolicy
	Logger           logr.Logger
	Snapshot         instance.StatusSnapshot
	SecurityGroup    string
	SnapshotSetCalls int
}

var _ cloud.Launch = &FakeScope{}

func (f *FakeScope) Cloud() skiffaws.Interface { return f.Client }

func (f *FakeScope) Name() string                    { return f.InstanceName }
func (f *FakeScope) Region() string                  { return f.AWSRegion }
func (f *FakeScope) InstanceHandle() instance.Handle { return f.Handle }
func (f *FakeScope) LaunchTemplateID() string        { return f.TemplateID }
func (f *FakeScope) LaunchTemplateName() string      { return f.TemplateName }
func (f *FakeScope) LaunchTemplateVersion() string   { return f.TemplateVersion }
func (f *FakeScope) InstanceType() string            { return f.OverrideType }
func (f *FakeScope) SubnetID() string                { return f.OverrideSubnet }
func (f *FakeScope) AvailabilityZone() string        { return f.OverrideAZ }
func (f *FakeScope) Spot() bool                      { return f.SpotCapacity }
func (f *FakeScope) VolumeID() string                { return f.Volume }
func (f *FakeScope) VolumeDevice() string            { return f.Device }
func (f *FakeScope) SecurityGroupName() string       { return f.SGName }
func (f *FakeScope) VPCID() string                   { return f.VPC }
func (f *FakeScope) WaitPolicy() instance.WaitPolicy { return f.Policy }
func (f *FakeScope) Log(name string) logr.Logger     { return f.Logger.WithName(name) }

func (f *FakeScope) SetInstanceHandle(handle instance.Handle) { f.Handle = handle }

func (f *FakeScope) SetStatusSnapshot(snapshot instance.StatusSnapshot) {
	f.Snapshot = snapshot
	f.SnapshotSetCalls++
}

func (f *FakeScope) SetSecurityGroupID(id string) { f.SecurityGroup = id }
