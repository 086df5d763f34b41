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

package volumes

import (
	"context"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
)

// Ensure attaches the configured volume to the instance when the volume is
// available. Volume contention, a missing volume, or a failed attach call are
// logged and skipped: the volume step must never abort an otherwise healthy
// launch. Only context cancellation surfaces as an error.
func (s *Service) Ensure(ctx context.Context, handle instance.Handle) error {
	volumeID := s.scope.VolumeID()
	if volumeID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	state, err := s.Client.DescribeVolume(ctx, volumeID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Log.Info("Skipping volume attach: could not determine volume state",
			"VolumeID", volumeID, "error", err.Error())
		return nil
	}

	switch state {
	case instance.VolumeAvailable:
		// fall through to attach
	case instance.VolumeInUse:
		s.Log.Info("Skipping volume attach: volume is in use", "VolumeID", volumeID)
		return nil
	case instance.VolumeMissing:
		s.Log.Info("Skipping volume attach: volume not found", "VolumeID", volumeID)
		return nil
	default:
		s.Log.Info("Skipping volume attach: volume is not available",
			"VolumeID", volumeID, "state", string(state))
		return nil
	}

	device := s.scope.VolumeDevice()
	if err := s.Client.AttachVolume(ctx, handle, volumeID, device); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attachErr := &awserrors.AttachError{VolumeID: volumeID, Err: err}
		s.Log.Info("Continuing without volume", "warning", attachErr.Error())
		return nil
	}

	s.Log.Info("Attached volume", "VolumeID", volumeID, "Device", device, "InstanceID", handle.String())
	return nil
}
