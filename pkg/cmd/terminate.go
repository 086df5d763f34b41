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

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/skiff-cloud/skiff/pkg/cloud/scope"
	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/instances"
	"github.com/skiff-cloud/skiff/pkg/config"
)

// terminatePollInterval is the pause between two checks while waiting for a
// terminated instance to actually go away.
const terminatePollInterval = 5 * time.Second

type terminateOptions struct {
	configPath string
	instanceID string
	wait       bool
}

func newTerminateCommand(root *rootOptions) *cobra.Command {
	opts := &terminateOptions{}

	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Terminate a managed instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminate(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "skiff.yaml", "path to the launch configuration file")
	cmd.Flags().StringVar(&opts.instanceID, "instance-id", "", "instance to terminate (defaults to the configured one)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "block until the instance has fully terminated")
	return cmd
}

func runTerminate(ctx context.Context, root *rootOptions, opts *terminateOptions) error {
	log, err := newLogger(root)
	if err != nil {
		return err
	}

	cfg, err := config.ReadFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.instanceID != "" {
		cfg.InstanceID = opts.instanceID
	}
	cfg.ApplyDefaults()
	if cfg.Region == "" {
		return &config.ValidationError{Reason: "region is required (config or AWS_REGION)"}
	}
	if cfg.InstanceID == "" {
		return &config.ValidationError{Reason: "an instance ID is required (config or --instance-id)"}
	}
	if err := scope.LoadCredentials(cfg.EnvFile); err != nil {
		return err
	}

	launchScope, err := scope.NewLaunchScope(ctx, scope.LaunchScopeParams{
		Config: cfg,
		Logger: log,
	})
	if err != nil {
		return err
	}

	svc := instances.New(launchScope)
	if err := svc.Terminate(ctx); err != nil {
		return err
	}
	if !opts.wait {
		return nil
	}

	log.Info("Waiting for instance to terminate", "InstanceID", cfg.InstanceID)
	for {
		err := svc.EnsureTerminated(ctx)
		if err == nil {
			log.Info("Instance terminated", "InstanceID", cfg.InstanceID)
			return nil
		}
		if !awserrors.IsInstanceNotTerminated(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(terminatePollInterval):
		}
	}
}
