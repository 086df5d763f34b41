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

package agent_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/ssh"
	sshagent "golang.org/x/crypto/ssh/agent"

	"github.com/skiff-cloud/skiff/pkg/agent"
)

// serveAgent runs an in-memory SSH agent on a unix socket until the listener
// is closed.
func serveAgent(listener net.Listener) {
	keyring := sshagent.NewKeyring()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			_ = sshagent.ServeAgent(keyring, conn)
		}()
	}
}

func writeKeyFile(dir, name string, block *pem.Block) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, pem.EncodeToMemory(block), 0o600)).To(Succeed())
	return path
}

var _ = Describe("Keyring", func() {
	var (
		dir      string
		socket   string
		listener net.Listener
		keyring  *agent.Keyring
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		socket = filepath.Join(dir, "agent.sock")

		var err error
		listener, err = net.Listen("unix", socket)
		Expect(err).NotTo(HaveOccurred())
		go serveAgent(listener)
		DeferCleanup(func() { _ = listener.Close() })

		keyring, err = agent.New(socket, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("refuses to build without any socket", func() {
			GinkgoT().Setenv("SSH_AUTH_SOCK", "")
			_, err := agent.New("", logr.Discard())
			Expect(err).To(MatchError(ContainSubstring("no agent socket")))
		})

		It("falls back to SSH_AUTH_SOCK", func() {
			GinkgoT().Setenv("SSH_AUTH_SOCK", socket)
			k, err := agent.New("", logr.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(k.Socket()).To(Equal(socket))
		})
	})

	Describe("Ping", func() {
		It("succeeds against a live agent", func() {
			Expect(keyring.Ping()).To(Succeed())
		})

		It("fails when nothing listens on the socket", func() {
			dead, err := agent.New(filepath.Join(dir, "missing.sock"), logr.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(dead.Ping()).NotTo(Succeed())
		})
	})

	Describe("AddKey", func() {
		var encryptedPath string

		BeforeEach(func() {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			Expect(err).NotTo(HaveOccurred())
			block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte("opensesame"))
			Expect(err).NotTo(HaveOccurred())
			encryptedPath = writeKeyFile(dir, "id_ed25519_enc", block)
		})

		It("loads an unencrypted key", func() {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			Expect(err).NotTo(HaveOccurred())
			block, err := ssh.MarshalPrivateKey(priv, "")
			Expect(err).NotTo(HaveOccurred())
			path := writeKeyFile(dir, "id_ed25519", block)

			Expect(keyring.AddKey(path, 0, nil)).To(Succeed())
			keys, err := keyring.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(HaveLen(1))
			Expect(keys[0].Comment).To(Equal(path))
		})

		It("asks for a passphrase before touching the agent", func() {
			err := keyring.AddKey(encryptedPath, 0, nil)
			Expect(errors.Is(err, agent.ErrPassphraseRequired)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(encryptedPath))

			keys, listErr := keyring.List()
			Expect(listErr).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())
		})

		It("decrypts the key with the supplied passphrase", func() {
			Expect(keyring.AddKey(encryptedPath, time.Minute, []byte("opensesame"))).To(Succeed())
			keys, err := keyring.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(HaveLen(1))
		})

		It("rejects a wrong passphrase", func() {
			err := keyring.AddKey(encryptedPath, 0, []byte("wrong"))
			Expect(err).To(MatchError(ContainSubstring("failed to decrypt")))
			Expect(errors.Is(err, agent.ErrPassphraseRequired)).To(BeFalse())
		})

		It("fails on an unreadable key file", func() {
			err := keyring.AddKey(filepath.Join(dir, "nope"), 0, nil)
			Expect(err).To(MatchError(ContainSubstring("failed to read key file")))
		})
	})

	Describe("Clear", func() {
		It("removes every identity", func() {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			Expect(err).NotTo(HaveOccurred())
			block, err := ssh.MarshalPrivateKey(priv, "")
			Expect(err).NotTo(HaveOccurred())
			path := writeKeyFile(dir, "id_ed25519", block)
			Expect(keyring.AddKey(path, 0, nil)).To(Succeed())

			Expect(keyring.Clear()).To(Succeed())
			keys, err := keyring.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())
		})
	})
})
