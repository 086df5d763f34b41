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
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	"github.com/skiff-cloud/skiff/pkg/cloud/scope"
	"github.com/skiff-cloud/skiff/pkg/config"
)

type listOptions struct {
	configPath string
	region     string
}

func newListCommand(root *rootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List managed instances in the region",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "skiff.yaml", "path to the launch configuration file")
	cmd.Flags().StringVar(&opts.region, "region", "", "region to list (overrides the configured one)")
	return cmd
}

func runList(ctx context.Context, root *rootOptions, opts *listOptions) error {
	log, err := newLogger(root)
	if err != nil {
		return err
	}

	cfg := &config.Config{}
	if loaded, err := config.ReadFile(opts.configPath); err == nil {
		cfg = loaded
	}
	if opts.region != "" {
		cfg.Region = opts.region
	}
	cfg.ApplyDefaults()
	if cfg.Region == "" {
		return &config.ValidationError{Reason: "region is required (config, AWS_REGION, or --region)"}
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

	instances, err := launchScope.Cloud().ListInstances(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Type", "State", "Public IP", "Launched"})
	table.SetBorder(false)
	for _, inst := range instances {
		state := ""
		if inst.State != nil {
			state = aws.StringValue(inst.State.Name)
		}
		launched := ""
		if inst.LaunchTime != nil {
			launched = inst.LaunchTime.Format(time.RFC3339)
		}
		table.Append([]string{
			aws.StringValue(inst.InstanceId),
			skiffaws.GetNameFromTags(inst.Tags),
			aws.StringValue(inst.InstanceType),
			state,
			skiffaws.PublicAddress(inst),
			launched,
		})
	}
	table.Render()
	return nil
}
