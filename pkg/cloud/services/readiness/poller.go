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

	"github.com/aws/aws-sdk-go/aws"
	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
)

// transientQueryRetries bounds how often a single status query is retried on
// transient provider errors before the whole poll is escalated to failed.
const transientQueryRetries = 3

// Wait blocks the caller until the instance is confirmed usable, a terminal
// failure is detected, or the wait policy gives up. Each poll fetches a fresh
// snapshot of all three status axes; lifecycle regression detection piggybacks
// on that snapshot instead of polling lifecycle state separately.
func (s *Service) Wait(ctx context.Context) (*instance.ReadyInstance, error) {
	handle := s.scope.InstanceHandle()
	if handle.IsZero() {
		return nil, &awserrors.PreconditionError{Reason: "instance handle must not be empty"}
	}

	policy := s.scope.WaitPolicy()
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	start := time.Now()
	machine := newMachine(s.scope.VolumeID() != "", s.Log, start)
	s.Log.Info("Waiting for instance readiness",
		"InstanceID", handle.String(), "pollInterval", policy.PollInterval.String(),
		"maxAttempts", policy.MaxAttempts, "timeout", policy.Timeout.String())

	attempts := 0
	last := instance.UnknownSnapshot()

	for {
		snapshot, queries, err := s.describeWithRetry(ctx, handle)
		if err != nil {
			s.failMachine(machine, last)
			if awserrors.IsNotFound(err) {
				return nil, errors.Wrapf(err, "instance %s is unknown to the provider", handle)
			}
			if ctx.Err() == context.DeadlineExceeded {
				return nil, &awserrors.TimeoutError{Handle: handle, Attempts: attempts, Elapsed: time.Since(start), Snapshot: last}
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &awserrors.TransientQueryError{Err: err, Attempts: queries, Snapshot: last}
		}
		attempts++
		last = snapshot
		s.scope.SetStatusSnapshot(snapshot)

		if err := s.advance(ctx, machine, handle, snapshot); err != nil {
			return nil, err
		}
		if machine.Current() == StateReady {
			return s.resolveReady(ctx, handle, time.Since(start))
		}

		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			s.failMachine(machine, last)
			return nil, &awserrors.TimeoutError{Handle: handle, Attempts: attempts, Elapsed: time.Since(start), Snapshot: last}
		}

		select {
		case <-ctx.Done():
			s.failMachine(machine, last)
			if ctx.Err() == context.DeadlineExceeded {
				return nil, &awserrors.TimeoutError{Handle: handle, Attempts: attempts, Elapsed: time.Since(start), Snapshot: last}
			}
			return nil, ctx.Err()
		case <-time.After(policy.PollInterval):
		}
	}
}

// advance applies as many transitions as the freshly fetched snapshot
// supports, so a snapshot that already satisfies several axes does not cost
// additional provider queries.
func (s *Service) advance(ctx context.Context, machine *fsm.FSM, handle instance.Handle, snapshot instance.StatusSnapshot) error {
	for {
		switch machine.Current() {
		case StateAwaitingLifecycle:
			if snapshot.Lifecycle.Regressed() {
				s.failMachine(machine, snapshot)
				return &awserrors.LifecycleRegressionError{Handle: handle, Snapshot: snapshot}
			}
			if snapshot.Lifecycle != instance.LifecycleRunning {
				return nil
			}
			s.fireEvent(machine, EventLifecycleRunning, snapshot)

		case StateAwaitingSystemStatus:
			if snapshot.Lifecycle.Regressed() {
				s.failMachine(machine, snapshot)
				return &awserrors.LifecycleRegressionError{Handle: handle, Snapshot: snapshot}
			}
			if snapshot.System != instance.HealthOK {
				return nil
			}
			s.fireEvent(machine, EventSystemOK, snapshot)

		case StateAwaitingInstanceStatus:
			if snapshot.Lifecycle.Regressed() {
				s.failMachine(machine, snapshot)
				return &awserrors.LifecycleRegressionError{Handle: handle, Snapshot: snapshot}
			}
			if snapshot.Instance != instance.HealthOK {
				return nil
			}
			s.fireEvent(machine, EventInstanceOK, snapshot)

		case StateAttachingVolume:
			if err := s.Volumes.Ensure(ctx, handle); err != nil {
				s.failMachine(machine, snapshot)
				return err
			}
			s.fireEvent(machine, EventVolumeSettled, snapshot)

		default:
			return nil
		}
	}
}

// describeWithRetry fetches a status snapshot, retrying transient provider
// errors a bounded number of times with exponential backoff. It reports how
// many queries were actually issued, so escalated errors carry a truthful
// attempt count even when a non-retryable failure aborted after one call.
func (s *Service) describeWithRetry(ctx context.Context, handle instance.Handle) (instance.StatusSnapshot, int, error) {
	snapshot := instance.UnknownSnapshot()
	queries := 0
	operation := func() error {
		queries++
		fresh, err := s.Client.DescribeInstanceStatus(ctx, handle)
		if err != nil {
			if !awserrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		snapshot = fresh
		return nil
	}

	exponential := backoff.NewExponentialBackOff()
	if s.retryInitialInterval > 0 {
		exponential.InitialInterval = s.retryInitialInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, transientQueryRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return snapshot, queries, err
	}
	return snapshot, queries, nil
}

// resolveReady turns the readiness verdict into the terminal success
// artifact, with the instance's public address and type resolved fresh.
func (s *Service) resolveReady(ctx context.Context, handle instance.Handle, elapsed time.Duration) (*instance.ReadyInstance, error) {
	inst, err := s.Client.FindInstanceByID(ctx, handle)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve ready instance")
	}
	if inst == nil {
		return nil, errors.Errorf("instance %s disappeared after becoming ready", handle)
	}

	ready := &instance.ReadyInstance{
		Handle:        handle,
		PublicAddress: skiffaws.PublicAddress(inst),
		InstanceType:  aws.StringValue(inst.InstanceType),
	}
	s.Log.Info("Instance is ready",
		"InstanceID", handle.String(), "PublicAddress", ready.PublicAddress,
		"InstanceType", ready.InstanceType, "elapsed", elapsed.Round(time.Millisecond).String())
	return ready, nil
}

func (s *Service) fireEvent(machine *fsm.FSM, event string, snapshot instance.StatusSnapshot) {
	// Transitions are valid by construction; a rejected event would be a
	// programming error, so it is logged rather than surfaced.
	if err := machine.Event(context.Background(), event, snapshot); err != nil {
		s.Log.Error(err, "Unexpected state machine transition failure", "event", event)
	}
}

func (s *Service) failMachine(machine *fsm.FSM, snapshot instance.StatusSnapshot) {
	if machine.Current() == StateFailed {
		return
	}
	if err := machine.Event(context.Background(), EventFail, snapshot); err != nil {
		s.Log.Error(err, "Unexpected state machine transition failure", "event", EventFail)
	}
}
