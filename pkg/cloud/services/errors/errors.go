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

package awserrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

var ErrInstanceNotTerminated = errors.New("the instance is not terminated yet, waiting")

// IsNotFound checks if the error is a "not found" error for resources.
func IsNotFound(err error) bool {
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		return strings.Contains(awsErr.Code(), "NotFound")
	}
	return false
}

// IgnoreNotFound ignore AWS API not found error and return nil.
// Otherwise return the actual error.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}

	return err
}

func IsInstanceNotTerminated(err error) bool {
	return errors.Is(err, ErrInstanceNotTerminated)
}

// IsRetryable reports whether a provider query failure is worth retrying with
// backoff. Not-found errors are fatal and never retried.
func IsRetryable(err error) bool {
	if IsNotFound(err) {
		return false
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		return request.IsErrorRetryable(awsErr) || request.IsErrorThrottle(awsErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// PreconditionError reports invalid caller input. It is never retried and is
// surfaced before any provider call is made.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

func IsPrecondition(err error) bool {
	var e *PreconditionError
	return errors.As(err, &e)
}

// ProvisionError reports that the provider rejected a fleet request outright,
// for example on quota exhaustion or an invalid launch template.
type ProvisionError struct {
	Err error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provider rejected the fleet request: %v", e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func IsProvisionRejected(err error) bool {
	var e *ProvisionError
	return errors.As(err, &e)
}

// TransientQueryError reports that a status query could not be completed
// within a single poll attempt. Attempts records how many queries were
// actually issued: the full retry budget for a throttled query, one for a
// non-retryable failure.
type TransientQueryError struct {
	Err      error
	Attempts int
	Snapshot instance.StatusSnapshot
}

func (e *TransientQueryError) Error() string {
	return fmt.Sprintf("status query failed after %d attempts (last snapshot: %s): %v",
		e.Attempts, e.Snapshot, e.Err)
}

func (e *TransientQueryError) Unwrap() error { return e.Err }

func IsTransientQuery(err error) bool {
	var e *TransientQueryError
	return errors.As(err, &e)
}

// LifecycleRegressionError reports that the instance moved away from
// usability while the poller was waiting for its health checks. Fatal, since
// a regressing instance will never become ready.
type LifecycleRegressionError struct {
	Handle   instance.Handle
	Snapshot instance.StatusSnapshot
}

func (e *LifecycleRegressionError) Error() string {
	return fmt.Sprintf("instance %s regressed to %s while waiting for readiness (last snapshot: %s)",
		e.Handle, e.Snapshot.Lifecycle, e.Snapshot)
}

func IsLifecycleRegression(err error) bool {
	var e *LifecycleRegressionError
	return errors.As(err, &e)
}

// TimeoutError reports that the wait policy was exhausted before the instance
// became ready.
type TimeoutError struct {
	Handle   instance.Handle
	Attempts int
	Elapsed  time.Duration
	Snapshot instance.StatusSnapshot
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("instance %s did not become ready after %d attempts in %s (last snapshot: %s)",
		e.Handle, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Snapshot)
}

func IsTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// AttachError reports a failed volume attach call. The launch flow downgrades
// it to a warning so that volume contention never aborts a healthy launch.
type AttachError struct {
	VolumeID string
	Err      error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("failed to attach volume %s: %v", e.VolumeID, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }
