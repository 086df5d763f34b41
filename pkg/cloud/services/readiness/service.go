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

package readiness

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/go-logr/logr"

	"github.com/skiff-cloud/skiff/pkg/cloud"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

const ServiceName = "readiness-poller"

// statusInterface defines the EC2 operations needed to observe an instance.
type statusInterface interface {
	DescribeInstanceStatus(ctx context.Context, handle instance.Handle) (instance.StatusSnapshot, error)
	FindInstanceByID(ctx context.Context, handle instance.Handle) (*ec2.Instance, error)
}

// VolumeAttacher settles the optional persistent-volume step once the
// instance is healthy. Implementations must downgrade attach problems to
// warnings; only context cancellation may surface as an error.
type VolumeAttacher interface {
	Ensure(ctx context.Context, handle instance.Handle) error
}

// Scope defines the methods needed from the calling context.
type Scope interface {
	cloud.Launch
}

// Service implements the readiness poller.
type Service struct {
	scope   Scope
	Client  statusInterface
	Volumes VolumeAttacher
	Log     logr.Logger

	// retryInitialInterval overrides the first backoff pause for transient
	// query retries. Zero keeps the backoff default; tests shrink it.
	retryInitialInterval time.Duration
}

// New returns Service from given scope.
func New(scope Scope, volumes VolumeAttacher) *Service {
	return &Service{
		scope:   scope,
		Client:  scope.Cloud(),
		Volumes: volumes,
		Log:     scope.Log(ServiceName),
	}
}
