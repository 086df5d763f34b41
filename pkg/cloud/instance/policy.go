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

package instance

import "time"

const (
	DefaultPollInterval = 15 * time.Second
	DefaultWaitTimeout  = 15 * time.Minute
)

// WaitPolicy governs the poll interval and termination bound of the readiness
// poller. A zero MaxAttempts or Timeout disables that particular bound, but
// callers are expected to keep at least one of them set so the poller cannot
// wait indefinitely.
type WaitPolicy struct {
	// PollInterval is the pause between two status queries.
	PollInterval time.Duration

	// MaxAttempts bounds the number of provider status queries. Zero means
	// no attempt bound.
	MaxAttempts int

	// Timeout bounds the total wall-clock time spent polling. Zero means no
	// deadline.
	Timeout time.Duration
}

// DefaultWaitPolicy returns the policy used when the caller does not supply
// explicit bounds.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultWaitTimeout,
	}
}
