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

package provision

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	dialAttempts   = 10
	dialRetryPause = 5 * time.Second
)

// Runner executes first-boot configuration commands over a single SSH
// connection.
type Runner struct {
	client *ssh.Client
	log    logr.Logger
}

// ConnectParams describes how to reach the freshly launched instance.
type ConnectParams struct {
	Host        string
	Port        int
	User        string
	KeyPath     string
	AgentSocket string
	Timeout     time.Duration
}

// Connect dials the instance, retrying for a while since sshd usually comes
// up a little after the provider reports the guest OS reachable.
func Connect(ctx context.Context, params ConnectParams, log logr.Logger) (*Runner, error) {
	if params.Host == "" {
		return nil, errors.New("no host to connect to")
	}

	auth, err := authMethods(params)
	if err != nil {
		return nil, err
	}

	timeout := params.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	config := &ssh.ClientConfig{
		User:            params.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
	for attempt := 1; ; attempt++ {
		client, err := ssh.Dial("tcp", addr, config)
		if err == nil {
			log.Info("SSH connection established", "addr", addr, "user", params.User)
			return &Runner{client: client, log: log}, nil
		}
		if attempt >= dialAttempts {
			return nil, errors.Wrapf(err, "failed to reach %s after %d attempts", addr, dialAttempts)
		}
		log.Info("SSH not reachable yet, retrying", "addr", addr, "attempt", attempt, "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryPause):
		}
	}
}

func authMethods(params ConnectParams) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if params.KeyPath != "" {
		keyData, err := os.ReadFile(params.KeyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read SSH key %s", params.KeyPath)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse SSH key %s", params.KeyPath)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if params.AgentSocket != "" {
		conn, err := net.Dial("unix", params.AgentSocket)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to reach SSH agent at %s", params.AgentSocket)
		}
		auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}
	if len(auth) == 0 {
		return nil, errors.New("no SSH auth method available: configure a key path or an agent socket")
	}
	return auth, nil
}

func (r *Runner) Close() error {
	return r.client.Close()
}

// Run executes a remote command and returns its combined output.
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	return r.run(ctx, command, nil)
}

// Push writes data to a remote path through sudo, creating parent
// directories as needed.
func (r *Runner) Push(ctx context.Context, data []byte, remotePath, mode string) error {
	quoted := shellQuote(remotePath)
	command := fmt.Sprintf("sudo mkdir -p %s && sudo tee %s >/dev/null && sudo chmod %s %s",
		shellQuote(path.Dir(remotePath)), quoted, mode, quoted)
	_, err := r.run(ctx, command, bytes.NewReader(data))
	return err
}

func (r *Runner) run(ctx context.Context, command string, stdin *bytes.Reader) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "failed to open SSH session")
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output
	if stdin != nil {
		session.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return output.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			return output.String(), errors.Wrapf(err, "remote command failed: %s", strings.TrimSpace(output.String()))
		}
		return output.String(), nil
	}
}

// shellQuote single-quotes a string for safe use in a remote shell command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
