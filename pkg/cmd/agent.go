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
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skiff-cloud/skiff/pkg/agent"
)

type agentOptions struct {
	socket   string
	keyPath  string
	lifetime time.Duration
}

func newAgentCommand(root *rootOptions) *cobra.Command {
	opts := &agentOptions{}

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the local SSH agent used for provisioning",
	}
	cmd.PersistentFlags().StringVar(&opts.socket, "socket", "", "agent socket (defaults to SSH_AUTH_SOCK)")

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a private key to the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := newKeyring(root, opts)
			if err != nil {
				return err
			}
			err = keyring.AddKey(opts.keyPath, opts.lifetime, nil)
			if errors.Is(err, agent.ErrPassphraseRequired) && term.IsTerminal(int(os.Stdin.Fd())) {
				passphrase, perr := promptPassphrase(opts.keyPath)
				if perr != nil {
					return perr
				}
				return keyring.AddKey(opts.keyPath, opts.lifetime, passphrase)
			}
			return err
		},
	}
	add.Flags().StringVarP(&opts.keyPath, "key", "k", "", "path to the private key file")
	add.Flags().DurationVar(&opts.lifetime, "lifetime", 0, "forget the key after this duration (0 keeps it)")
	_ = add.MarkFlagRequired("key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List identities held by the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := newKeyring(root, opts)
			if err != nil {
				return err
			}
			keys, err := keyring.List()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("The agent has no identities.")
				return nil
			}
			for _, key := range keys {
				fmt.Printf("%s %s\n", key.Format, key.Comment)
			}
			return nil
		},
	}

	ensure := &cobra.Command{
		Use:     "ensure",
		Aliases: []string{"ping"},
		Short:   "Check that a live agent answers on the socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := newKeyring(root, opts)
			if err != nil {
				return err
			}
			if err := keyring.Ping(); err != nil {
				return err
			}
			fmt.Printf("Agent at %s is alive.\n", keyring.Socket())
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove all identities from the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := newKeyring(root, opts)
			if err != nil {
				return err
			}
			return keyring.Clear()
		},
	}

	cmd.AddCommand(ensure, add, list, clear)
	return cmd
}

// promptPassphrase reads the key passphrase from the terminal without echo.
// The prompt goes to stderr so that stdout stays clean for scripting.
func promptPassphrase(keyPath string) ([]byte, error) {
	fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", keyPath)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read passphrase")
	}
	return passphrase, nil
}

func newKeyring(root *rootOptions, opts *agentOptions) (*agent.Keyring, error) {
	log, err := newLogger(root)
	if err != nil {
		return nil, err
	}
	return agent.New(opts.socket, log.WithName("agent"))
}
