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

	"github.com/aws/aws-sdk-go/aws"
	"github.com/pkg/errors"
)

// Ensure makes sure the configured SSH security group exists and allows
// inbound SSH. The group is looked up by name first so repeated launches
// reuse it instead of piling up duplicates. A launch without a configured
// group name skips this step entirely; the launch template's own groups
// apply.
func (s *Service) Ensure(ctx context.Context) error {
	name := s.scope.SecurityGroupName()
	if name == "" {
		return nil
	}

	existing, err := s.Client.FindSecurityGroupByName(ctx, name)
	if err != nil {
		return errors.Wrap(err, "failed to look up Security Group")
	}
	if existing != nil {
		id := aws.StringValue(existing.GroupId)
		s.Log.Info("Using existing Security Group", "SecurityGroupID", id)
		s.scope.SetSecurityGroupID(id)
		return nil
	}

	s.Log.Info("Creating Security Group", "name", name, "VPCID", s.scope.VPCID())
	id, err := s.Client.CreateSecurityGroup(ctx, s.scope.VPCID(), name)
	if err != nil {
		return errors.Wrap(err, "failed to create Security Group")
	}

	if err := s.Client.AuthorizeSSHIngress(ctx, id); err != nil {
		return errors.Wrap(err, "failed to add SSH ingress rule to Security Group")
	}

	s.scope.SetSecurityGroupID(id)
	s.Log.Info("Successfully bootstrapped Security Group", "SecurityGroupID", id)
	return nil
}
