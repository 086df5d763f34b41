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

package scope

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	"github.com/skiff-cloud/skiff/pkg/cloud"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
	"github.com/skiff-cloud/skiff/pkg/config"
)

// LaunchScope defines the basic context for the launch services to operate
// upon. The configuration is read-only; the scope carries the small amount of
// state the services produce (instance handle, last snapshot, security group).
type LaunchScope struct {
	AWSClient skiffaws.Interface
	Config    *config.Config

	logger          logr.Logger
	instanceHandle  instance.Handle
	lastSnapshot    instance.StatusSnapshot
	securityGroupID string
}

var _ cloud.Launch = &LaunchScope{}

// LaunchScopeParams defines the input parameters to create a LaunchScope.
type LaunchScopeParams struct {
	AWSClient skiffaws.Interface
	Config    *config.Config
	Logger    logr.Logger
}

// NewLaunchScope creates a new LaunchScope from the supplied parameters.
func NewLaunchScope(ctx context.Context, params LaunchScopeParams) (*LaunchScope, error) {
	if params.Config == nil {
		return nil, errors.New("failed to generate new scope from nil Config")
	}

	if params.AWSClient == nil {
		awsSvc, err := skiffaws.NewAWSClient(ctx, params.Config.Region)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create aws client")
		}
		params.AWSClient = &awsSvc
	}

	return &LaunchScope{
		AWSClient:      params.AWSClient,
		Config:         params.Config,
		logger:         params.Logger,
		instanceHandle: instance.Handle(params.Config.InstanceID),
		lastSnapshot:   instance.UnknownSnapshot(),
	}, nil
}

func (s *LaunchScope) Cloud() skiffaws.Interface { return s.AWSClient }

// Log returns a named logger for one of the launch services.
func (s *LaunchScope) Log(name string) logr.Logger {
	return s.logger.WithName(name)
}

func (s *LaunchScope) Name() string   { return s.Config.Name }
func (s *LaunchScope) Region() string { return s.Config.Region }

func (s *LaunchScope) InstanceHandle() instance.Handle { return s.instanceHandle }

func (s *LaunchScope) SetInstanceHandle(handle instance.Handle) {
	s.instanceHandle = handle
}

func (s *LaunchScope) LaunchTemplateID() string      { return s.Config.LaunchTemplate.ID }
func (s *LaunchScope) LaunchTemplateName() string    { return s.Config.LaunchTemplate.Name }
func (s *LaunchScope) LaunchTemplateVersion() string { return s.Config.LaunchTemplate.Version }
func (s *LaunchScope) InstanceType() string          { return s.Config.Overrides.InstanceType }
func (s *LaunchScope) SubnetID() string              { return s.Config.Overrides.SubnetID }
func (s *LaunchScope) AvailabilityZone() string      { return s.Config.Overrides.AvailabilityZone }
func (s *LaunchScope) Spot() bool                    { return s.Config.Overrides.Spot }

func (s *LaunchScope) VolumeID() string     { return s.Config.Volume.ID }
func (s *LaunchScope) VolumeDevice() string { return s.Config.Volume.Device }

func (s *LaunchScope) SecurityGroupName() string { return s.Config.SecurityGroup.Name }
func (s *LaunchScope) VPCID() string             { return s.Config.SecurityGroup.VPCID }

func (s *LaunchScope) SecurityGroupID() string { return s.securityGroupID }

func (s *LaunchScope) SetSecurityGroupID(id string) { s.securityGroupID = id }

func (s *LaunchScope) WaitPolicy() instance.WaitPolicy { return s.Config.WaitPolicy() }

// LastSnapshot returns the most recent status snapshot observed by the
// readiness poller, for diagnostics after a failed launch.
func (s *LaunchScope) LastSnapshot() instance.StatusSnapshot { return s.lastSnapshot }

func (s *LaunchScope) SetStatusSnapshot(snapshot instance.StatusSnapshot) {
	s.lastSnapshot = snapshot
}
