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

package agent

import (
	"net"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// ErrPassphraseRequired reports that a private key file is encrypted and
// cannot be loaded without its passphrase. Callers may prompt for one and
// retry AddKey.
var ErrPassphraseRequired = errors.New("the key is encrypted and requires a passphrase")

// Keyring manages the operator's local credential-forwarding agent through
// its unix socket.
type Keyring struct {
	socket string
	log    logr.Logger
}

// New resolves the agent socket, falling back to SSH_AUTH_SOCK.
func New(socket string, log logr.Logger) (*Keyring, error) {
	if socket == "" {
		socket = os.Getenv("SSH_AUTH_SOCK")
	}
	if socket == "" {
		return nil, errors.New("no agent socket: set SSH_AUTH_SOCK or pass --socket")
	}
	return &Keyring{socket: socket, log: log}, nil
}

func (k *Keyring) Socket() string { return k.socket }

func (k *Keyring) dial() (agent.ExtendedAgent, net.Conn, error) {
	conn, err := net.Dial("unix", k.socket)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to reach agent at %s", k.socket)
	}
	return agent.NewClient(conn), conn, nil
}

// Ping verifies that a live agent answers on the socket.
func (k *Keyring) Ping() error {
	client, conn, err := k.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := client.List(); err != nil {
		return errors.Wrap(err, "agent did not answer")
	}
	return nil
}

// AddKey loads a private key file into the agent, optionally bounded by a
// lifetime after which the agent forgets it.
func (k *Keyring) AddKey(path string, lifetime time.Duration, passphrase []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read key file %s", path)
	}

	key, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			return errors.Wrapf(err, "failed to parse key file %s", path)
		}
		if len(passphrase) == 0 {
			return errors.Wrapf(ErrPassphraseRequired, "key file %s", path)
		}
		key, err = ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
		if err != nil {
			return errors.Wrapf(err, "failed to decrypt key file %s", path)
		}
	}

	client, conn, err := k.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	added := agent.AddedKey{
		PrivateKey:   key,
		Comment:      path,
		LifetimeSecs: uint32(lifetime / time.Second),
	}
	if err := client.Add(added); err != nil {
		return errors.Wrap(err, "agent refused the key")
	}

	k.log.Info("Key added to agent", "path", path, "lifetime", lifetime.String())
	return nil
}

// List returns the identities currently held by the agent.
func (k *Keyring) List() ([]*agent.Key, error) {
	client, conn, err := k.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	keys, err := client.List()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list agent identities")
	}
	return keys, nil
}

// Clear removes every identity from the agent.
func (k *Keyring) Clear() error {
	client, conn, err := k.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := client.RemoveAll(); err != nil {
		return errors.Wrap(err, "failed to clear agent identities")
	}
	k.log.Info("Agent identities cleared")
	return nil
}
