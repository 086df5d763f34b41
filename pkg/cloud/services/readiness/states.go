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

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

// States of the readiness machine, from initial to terminal.
const (
	StateAwaitingLifecycle      = "awaiting-lifecycle"
	StateAwaitingSystemStatus   = "awaiting-system-status"
	StateAwaitingInstanceStatus = "awaiting-instance-status"
	StateAttachingVolume        = "attaching-volume"
	StateReady                  = "ready"
	StateFailed                 = "failed"
)

// Events driving the readiness machine.
const (
	EventLifecycleRunning = "lifecycle-running"
	EventSystemOK         = "system-ok"
	EventInstanceOK       = "instance-ok"
	EventVolumeSettled    = "volume-settled"
	EventFail             = "fail"
)

// newMachine builds the state machine for one poll invocation. The volume
// attachment state only exists when a volume is configured; without one the
// instance-status check transitions straight to ready.
func newMachine(hasVolume bool, log logr.Logger, start time.Time) *fsm.FSM {
	events := []fsm.EventDesc{
		{Name: EventLifecycleRunning, Src: []string{StateAwaitingLifecycle}, Dst: StateAwaitingSystemStatus},
		{Name: EventSystemOK, Src: []string{StateAwaitingSystemStatus}, Dst: StateAwaitingInstanceStatus},
	}
	if hasVolume {
		events = append(events,
			fsm.EventDesc{Name: EventInstanceOK, Src: []string{StateAwaitingInstanceStatus}, Dst: StateAttachingVolume},
			fsm.EventDesc{Name: EventVolumeSettled, Src: []string{StateAttachingVolume}, Dst: StateReady},
		)
	} else {
		events = append(events,
			fsm.EventDesc{Name: EventInstanceOK, Src: []string{StateAwaitingInstanceStatus}, Dst: StateReady},
		)
	}
	events = append(events, fsm.EventDesc{
		Name: EventFail,
		Src: []string{
			StateAwaitingLifecycle,
			StateAwaitingSystemStatus,
			StateAwaitingInstanceStatus,
			StateAttachingVolume,
		},
		Dst: StateFailed,
	})

	return fsm.NewFSM(
		StateAwaitingLifecycle,
		fsm.Events(events),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				keysAndValues := []any{
					"from", e.Src,
					"to", e.Dst,
					"elapsed", time.Since(start).Round(time.Millisecond).String(),
				}
				if len(e.Args) > 0 {
					if snapshot, ok := e.Args[0].(instance.StatusSnapshot); ok {
						keysAndValues = append(keysAndValues, "snapshot", snapshot.String())
					}
				}
				log.Info("State transition", keysAndValues...)
			},
		},
	)
}
