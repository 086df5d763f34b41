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

import "fmt"

// Handle is the provider-assigned identifier of a compute instance. It is the
// sole key used for status queries after a fleet request has been fulfilled.
type Handle string

func (h Handle) String() string { return string(h) }

// IsZero reports whether the handle is missing. An empty handle is a fatal
// precondition failure for the readiness poller, never a retryable state.
func (h Handle) IsZero() bool { return h == "" }

// LifecycleState is the coarse running/stopped phase of an instance as
// reported by the provider.
type LifecycleState string

const (
	LifecyclePending      LifecycleState = "pending"
	LifecycleRunning      LifecycleState = "running"
	LifecycleShuttingDown LifecycleState = "shutting-down"
	LifecycleTerminated   LifecycleState = "terminated"
	LifecycleStopping     LifecycleState = "stopping"
	LifecycleStopped      LifecycleState = "stopped"

	// LifecycleUnknown covers absent values and any provider string outside
	// the closed set. New instances sometimes report no state at all for a
	// short while, so unknown means "not yet ready", never failure.
	LifecycleUnknown LifecycleState = "unknown"
)

// ParseLifecycleState maps a raw provider string onto the closed state set.
func ParseLifecycleState(raw string) LifecycleState {
	switch LifecycleState(raw) {
	case LifecyclePending, LifecycleRunning, LifecycleShuttingDown,
		LifecycleTerminated, LifecycleStopping, LifecycleStopped:
		return LifecycleState(raw)
	default:
		return LifecycleUnknown
	}
}

// Regressed reports whether the instance is moving away from usability.
func (s LifecycleState) Regressed() bool {
	switch s {
	case LifecycleShuttingDown, LifecycleTerminated, LifecycleStopping, LifecycleStopped:
		return true
	default:
		return false
	}
}

// HealthStatus is a provider-determined health check result, reported
// independently for the host hardware path and for the guest OS.
type HealthStatus string

const (
	HealthOK               HealthStatus = "ok"
	HealthImpaired         HealthStatus = "impaired"
	HealthInsufficientData HealthStatus = "insufficient-data"
	HealthNotApplicable    HealthStatus = "not-applicable"

	// HealthUnknown covers absent values and unrecognized provider strings.
	HealthUnknown HealthStatus = "unknown"
)

// ParseHealthStatus maps a raw provider string onto the closed status set.
func ParseHealthStatus(raw string) HealthStatus {
	switch HealthStatus(raw) {
	case HealthOK, HealthImpaired, HealthInsufficientData, HealthNotApplicable:
		return HealthStatus(raw)
	default:
		return HealthUnknown
	}
}

// StatusSnapshot is a point-in-time read of the three status axes of an
// instance. Snapshots are always fetched fresh from the provider and
// discarded after the transition decision has been made.
type StatusSnapshot struct {
	Lifecycle LifecycleState
	System    HealthStatus
	Instance  HealthStatus
}

// UnknownSnapshot is what the poller assumes before the provider has reported
// anything at all about an instance.
func UnknownSnapshot() StatusSnapshot {
	return StatusSnapshot{
		Lifecycle: LifecycleUnknown,
		System:    HealthUnknown,
		Instance:  HealthUnknown,
	}
}

func (s StatusSnapshot) String() string {
	return fmt.Sprintf("lifecycle=%s system=%s instance=%s", s.Lifecycle, s.System, s.Instance)
}

// ReadyInstance is the terminal success artifact of the readiness poller.
// Ownership passes to the caller, who treats it as read-only.
type ReadyInstance struct {
	Handle        Handle
	PublicAddress string
	InstanceType  string
}
