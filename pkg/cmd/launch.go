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
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
	"github.com/skiff-cloud/skiff/pkg/cloud/scope"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/instances"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/readiness"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/securitygroup"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/volumes"
	"github.com/skiff-cloud/skiff/pkg/config"
	"github.com/skiff-cloud/skiff/pkg/provision"
)

type launchOptions struct {
	configPath    string
	instanceID    string
	volumeID      string
	pollInterval  time.Duration
	timeout       time.Duration
	maxAttempts   int
	skipProvision bool
}

func newLaunchCommand(root *rootOptions) *cobra.Command {
	opts := &launchOptions{}

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch an instance and wait for it to become usable",
		Long: `Launch requests capacity from the provider (or adopts an existing
instance), polls until the guest OS is confirmed reachable, attaches the
configured persistent volume, and runs the first-boot provisioning steps
over SSH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "skiff.yaml", "path to the launch configuration file")
	cmd.Flags().StringVar(&opts.instanceID, "instance-id", "", "reuse an existing instance instead of requesting a fleet")
	cmd.Flags().StringVar(&opts.volumeID, "volume-id", "", "persistent volume to attach once the instance is ready")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 0, "pause between readiness polls")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall readiness deadline")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "maximum number of status queries before giving up")
	cmd.Flags().BoolVar(&opts.skipProvision, "skip-provision", false, "stop after readiness, do not run provisioning over SSH")
	return cmd
}

func runLaunch(ctx context.Context, root *rootOptions, opts *launchOptions) error {
	log, err := newLogger(root)
	if err != nil {
		return err
	}

	cfg, err := loadLaunchConfig(opts)
	if err != nil {
		return err
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

	if err := securitygroup.New(launchScope).Ensure(ctx); err != nil {
		return err
	}
	if err := instances.New(launchScope).Ensure(ctx); err != nil {
		return err
	}

	ready, err := readiness.New(launchScope, volumes.New(launchScope)).Wait(ctx)
	if err != nil {
		return err
	}
	printReady(ready)

	if opts.skipProvision || cfg.Provision.Skip {
		return nil
	}
	return runProvision(ctx, cfg, ready, log)
}

// loadLaunchConfig layers flag overrides over the configuration file, then
// defaults and validates the result.
func loadLaunchConfig(opts *launchOptions) (*config.Config, error) {
	cfg, err := config.ReadFile(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.instanceID != "" {
		cfg.InstanceID = opts.instanceID
	}
	if opts.volumeID != "" {
		cfg.Volume.ID = opts.volumeID
	}
	if opts.pollInterval > 0 {
		cfg.Wait.PollInterval = config.Duration(opts.pollInterval)
	}
	if opts.timeout > 0 {
		cfg.Wait.Timeout = config.Duration(opts.timeout)
	}
	if opts.maxAttempts > 0 {
		cfg.Wait.MaxAttempts = opts.maxAttempts
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printReady(ready *instance.ReadyInstance) {
	fmt.Printf("Instance %s is ready\n", ready.Handle)
	if ready.PublicAddress != "" {
		fmt.Printf("  address: %s\n", ready.PublicAddress)
	}
	if ready.InstanceType != "" {
		fmt.Printf("  type:    %s\n", ready.InstanceType)
	}
}

func runProvision(ctx context.Context, cfg *config.Config, ready *instance.ReadyInstance, log logr.Logger) error {
	agentSocket := ""
	if cfg.SSH.UseAgent {
		agentSocket = os.Getenv("SSH_AUTH_SOCK")
	}

	runner, err := provision.Connect(ctx, provision.ConnectParams{
		Host:        ready.PublicAddress,
		Port:        cfg.SSH.Port,
		User:        cfg.SSH.User,
		KeyPath:     cfg.SSH.KeyPath,
		AgentSocket: agentSocket,
	}, log.WithName("provision"))
	if err != nil {
		return err
	}
	defer runner.Close()

	pipeline := provision.NewPipeline(runner, provision.Spec{
		User:         cfg.Provision.User,
		Groups:       cfg.Provision.Groups,
		Packages:     cfg.Provision.Packages,
		DotfilesDir:  cfg.Provision.Dotfiles,
		VolumeDevice: cfg.Volume.Device,
		MountPoint:   cfg.Provision.MountPoint,
		Filesystem:   cfg.Provision.Filesystem,
		Sysctl:       cfg.Provision.Sysctl,
	}, log.WithName("provision"))
	return pipeline.Run(ctx)
}
