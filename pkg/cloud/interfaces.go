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

package cloud

import (
	"github.com/go-logr/logr"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

// Client is an interface which can get cloud client.
type Client interface {
	Cloud() skiffaws.Interface
}

// LaunchGetter is an interface which can get launch information.
type LaunchGetter interface {
	Client
	Name() string
	Region() string
	InstanceHandle() instance.Handle
	LaunchTemplateID() string
	LaunchTemplateName() string
	LaunchTemplateVersion() string
	InstanceType() string
	SubnetID() string
	AvailabilityZone() string
	Spot() bool
	VolumeID() string
	VolumeDevice() string
	SecurityGroupName() string
	VPCID() string
	WaitPolicy() instance.WaitPolicy
	Log(name string) logr.Logger
}

// LaunchSetter is an interface which can set launch information.
type LaunchSetter interface {
	SetInstanceHandle(handle instance.Handle)
	SetStatusSnapshot(snapshot instance.StatusSnapshot)
	SetSecurityGroupID(id string)
}

type Launch interface {
	LaunchGetter
	LaunchSetter
}
