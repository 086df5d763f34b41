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

package securitygroup

import (
	"context"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/go-logr/logr"

	"github.com/skiff-cloud/skiff/pkg/cloud"
)

const ServiceName = "firewall-bootstrap"

type securityGroupInterface interface {
	FindSecurityGroupByName(ctx context.Context, name string) (*ec2.SecurityGroup, error)
	CreateSecurityGroup(ctx context.Context, vpcID, name string) (string, error)
	AuthorizeSSHIngress(ctx context.Context, sgID string) error
}

// Scope defines the methods needed from the calling context.
type Scope interface {
	cloud.Launch
}

// Service implements the SSH security group bootstrap.
type Service struct {
	scope  Scope
	Client securityGroupInterface
	Log    logr.Logger
}

// New returns Service from given scope.
func New(scope Scope) *Service {
	return &Service{
		scope:  scope,
		Client: scope.Cloud(),
		Log:    scope.Log(ServiceName),
	}
}
