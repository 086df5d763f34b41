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

package instances

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
)

// Ensure makes sure the scope holds a usable instance handle: either the
// caller supplied one up front, or a fleet request is submitted and its
// fulfilled instance recorded.
func (s *Service) Ensure(ctx context.Context) error {
	handle := s.scope.InstanceHandle()
	if !handle.IsZero() {
		inst, err := s.Client.FindInstanceByID(ctx, handle)
		if err != nil {
			return errors.Wrap(err, "failed to find instance by ID")
		}
		if inst == nil {
			return &awserrors.PreconditionError{
				Reason: "instance " + handle.String() + " is unknown to the provider",
			}
		}
		s.Log.Info("Using existing instance", "InstanceID", handle.String())
		return nil
	}

	params := skiffaws.RequestFleetParams{
		Name:                  s.scope.Name(),
		LaunchTemplateID:      s.scope.LaunchTemplateID(),
		LaunchTemplateName:    s.scope.LaunchTemplateName(),
		LaunchTemplateVersion: s.scope.LaunchTemplateVersion(),
		InstanceType:          s.scope.InstanceType(),
		SubnetID:              s.scope.SubnetID(),
		AvailabilityZone:      s.scope.AvailabilityZone(),
		Spot:                  s.scope.Spot(),
		ClientToken:           uuid.NewString(),
	}

	s.Log.Info("Requesting fleet",
		"launchTemplate", params.LaunchTemplateID+params.LaunchTemplateName,
		"instanceType", params.InstanceType, "spot", params.Spot)
	handle, err := s.Client.RequestFleet(ctx, params)
	if err != nil {
		return &awserrors.ProvisionError{Err: err}
	}

	s.scope.SetInstanceHandle(handle)
	s.Log.Info("Fleet request fulfilled", "InstanceID", handle.String())
	return nil
}

// Terminate tears down the instance the scope points at, refusing to touch
// instances that are not tagged as managed.
func (s *Service) Terminate(ctx context.Context) error {
	handle := s.scope.InstanceHandle()
	if handle.IsZero() {
		s.Log.Info("No instance to terminate, skipping")
		return nil
	}

	isManaged, err := s.Client.IsManagedInstance(ctx, handle)
	if err != nil {
		return errors.Wrap(err, "failed to check if instance is managed")
	}
	if !isManaged {
		s.Log.Info("Instance is not managed by skiff, skipping termination", "InstanceID", handle.String())
		return nil
	}

	inst, err := s.Client.FindInstanceByID(ctx, handle)
	if err != nil {
		return errors.Wrap(err, "failed to describe instance")
	}
	if inst == nil {
		s.Log.Info("Instance already deleted", "InstanceID", handle.String())
		return nil
	}

	state := ""
	if inst.State != nil {
		state = aws.StringValue(inst.State.Name)
	}
	if state == ec2.InstanceStateNameTerminated || state == ec2.InstanceStateNameShuttingDown {
		s.Log.Info("Instance is already going away", "InstanceID", handle.String(), "state", state)
		return nil
	}

	s.Log.Info("Terminating instance", "InstanceID", handle.String())
	if err := s.Client.TerminateInstance(ctx, handle); err != nil {
		return err
	}

	s.Log.Info("Termination initiated", "InstanceID", handle.String())
	return nil
}

// EnsureTerminated reports whether the instance the scope points at is gone.
// It returns ErrInstanceNotTerminated while the instance still exists in any
// state other than terminated, so callers can poll until teardown completes.
func (s *Service) EnsureTerminated(ctx context.Context) error {
	handle := s.scope.InstanceHandle()
	if handle.IsZero() {
		return nil
	}

	inst, err := s.Client.FindInstanceByID(ctx, handle)
	if err != nil {
		return errors.Wrap(err, "failed to describe instance")
	}
	if inst == nil {
		return nil
	}

	state := ""
	if inst.State != nil {
		state = aws.StringValue(inst.State.Name)
	}
	if state == ec2.InstanceStateNameTerminated {
		return nil
	}

	s.Log.Info("Instance is not terminated yet", "InstanceID", handle.String(), "state", state)
	return awserrors.ErrInstanceNotTerminated
}
