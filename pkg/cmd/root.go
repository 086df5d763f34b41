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
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
	"github.com/skiff-cloud/skiff/pkg/config"
)

// Exit codes let scripts wrapping skiff distinguish failure modes without
// parsing log output.
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitBadInput            = 2
	ExitProvisionRejected   = 3
	ExitTimeout             = 4
	ExitLifecycleRegression = 5
)

type rootOptions struct {
	verbosity int
}

// NewRootCommand wires up the skiff command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "skiff",
		Short:         "Launch short-lived cloud instances and wait for them to become usable",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	cmd.AddCommand(
		newLaunchCommand(opts),
		newTerminateCommand(opts),
		newListCommand(opts),
		newAgentCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the CLI and maps the terminal error to a process exit code.
func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCode(err)
}

// exitCode classifies a terminal error into the documented exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case awserrors.IsPrecondition(err), config.IsValidation(err):
		return ExitBadInput
	case awserrors.IsProvisionRejected(err):
		return ExitProvisionRejected
	case awserrors.IsTimeout(err):
		return ExitTimeout
	case awserrors.IsLifecycleRegression(err):
		return ExitLifecycleRegression
	default:
		return ExitFailure
	}
}

// newLogger builds the logr sink the services log through. Verbosity above
// zero enables debug-level output.
func newLogger(opts *rootOptions) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.verbosity > 0 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-opts.verbosity))
	}

	zapLog, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zapLog), nil
}
