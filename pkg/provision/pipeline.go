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
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// Spec describes the first-boot configuration applied to a fresh instance.
type Spec struct {
	User         string
	Groups       []string
	Packages     []string
	DotfilesDir  string
	VolumeDevice string
	MountPoint   string
	Filesystem   string
	Sysctl       map[string]string
}

// Pipeline runs the first-boot steps in order over one SSH connection.
// Steps are plain sequential remote commands: the first failure aborts the
// pipeline, there is no retry and no state carried between steps.
type Pipeline struct {
	runner *Runner
	spec   Spec
	log    logr.Logger
}

func NewPipeline(runner *Runner, spec Spec, log logr.Logger) *Pipeline {
	return &Pipeline{runner: runner, spec: spec, log: log}
}

func (p *Pipeline) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"create-user", p.createUser},
		{"install-packages", p.installPackages},
		{"deploy-dotfiles", p.deployDotfiles},
		{"mount-volume", p.mountVolume},
		{"tune-system", p.tuneSystem},
	}

	for _, step := range steps {
		p.log.Info("Running provisioning step", "step", step.name)
		if err := step.fn(ctx); err != nil {
			return errors.Wrapf(err, "provisioning step %s failed", step.name)
		}
	}
	p.log.Info("Provisioning complete")
	return nil
}

func (p *Pipeline) createUser(ctx context.Context) error {
	for _, command := range buildUserCommands(p.spec.User, p.spec.Groups) {
		if _, err := p.runner.Run(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) installPackages(ctx context.Context) error {
	command := buildPackageCommand(p.spec.Packages)
	if command == "" {
		return nil
	}
	_, err := p.runner.Run(ctx, command)
	return err
}

func (p *Pipeline) deployDotfiles(ctx context.Context) error {
	root := p.spec.DotfilesDir
	if root == "" {
		return nil
	}

	err := filepath.WalkDir(root, func(localPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, localPath)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(localPath)
		if err != nil {
			return errors.Wrapf(err, "failed to read dotfile %s", localPath)
		}

		remote := p.remoteHomePath(filepath.ToSlash(rel))
		if err := p.runner.Push(ctx, data, remote, "0644"); err != nil {
			return err
		}
		_, err = p.runner.Run(ctx, buildChownCommand(p.spec.User, remote))
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to deploy dotfiles from %s", root)
	}
	return nil
}

func (p *Pipeline) mountVolume(ctx context.Context) error {
	commands := buildMountCommands(p.spec.VolumeDevice, p.spec.MountPoint, p.spec.Filesystem, p.spec.User)
	for _, command := range commands {
		if _, err := p.runner.Run(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) tuneSystem(ctx context.Context) error {
	for _, command := range buildSysctlCommands(p.spec.Sysctl) {
		if _, err := p.runner.Run(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

// remoteHomePath places a relative dotfile path under the target user's home
// directory, or relative to the login user's home when no user is created.
func (p *Pipeline) remoteHomePath(rel string) string {
	if p.spec.User == "" {
		return rel
	}
	return path.Join("/home", p.spec.User, rel)
}

func buildUserCommands(user string, groups []string) []string {
	if user == "" {
		return nil
	}
	quoted := shellQuote(user)
	sudoers := "/etc/sudoers.d/90-" + user
	commands := []string{
		fmt.Sprintf("id -u %s >/dev/null 2>&1 || sudo useradd -m -s /bin/bash %s", quoted, quoted),
		fmt.Sprintf("echo %s | sudo tee %s >/dev/null && sudo chmod 0440 %s",
			shellQuote(user+" ALL=(ALL) NOPASSWD:ALL"), shellQuote(sudoers), shellQuote(sudoers)),
	}
	if len(groups) > 0 {
		commands = append(commands,
			fmt.Sprintf("sudo usermod -aG %s %s", shellQuote(strings.Join(groups, ",")), quoted))
	}
	return commands
}

// buildPackageCommand installs packages with whichever supported package
// manager the image ships.
func buildPackageCommand(packages []string) string {
	if len(packages) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(packages))
	for _, pkg := range packages {
		quoted = append(quoted, shellQuote(pkg))
	}
	list := strings.Join(quoted, " ")
	return fmt.Sprintf(
		"if command -v dnf >/dev/null 2>&1; then sudo dnf install -y %[1]s; "+
			"elif command -v yum >/dev/null 2>&1; then sudo yum install -y %[1]s; "+
			"elif command -v apt-get >/dev/null 2>&1; then sudo apt-get update -qq && sudo DEBIAN_FRONTEND=noninteractive apt-get install -y %[1]s; "+
			"else echo 'no supported package manager found' >&2; exit 1; fi", list)
}

// buildMountCommands formats the volume if it carries no filesystem yet, then
// mounts it and makes the mount survive reboots. The device may take a moment
// to appear after attach, so the first command waits for it.
func buildMountCommands(device, mountPoint, filesystem, user string) []string {
	if device == "" || mountPoint == "" {
		return nil
	}
	dev := shellQuote(device)
	mount := shellQuote(mountPoint)
	fsType := shellQuote(filesystem)
	commands := []string{
		fmt.Sprintf("for i in $(seq 1 30); do test -b %[1]s && break; sleep 2; done; test -b %[1]s", dev),
		fmt.Sprintf("sudo blkid %[1]s >/dev/null 2>&1 || sudo mkfs -t %[2]s %[1]s", dev, fsType),
		fmt.Sprintf("sudo mkdir -p %s", mount),
		fmt.Sprintf("sudo mount %s %s", dev, mount),
		fmt.Sprintf("grep -qF %s /etc/fstab || echo %s | sudo tee -a /etc/fstab >/dev/null",
			mount, shellQuote(fmt.Sprintf("%s %s %s defaults,nofail 0 2", device, mountPoint, filesystem))),
	}
	if user != "" {
		commands = append(commands, fmt.Sprintf("sudo chown %s %s", shellQuote(user+":"), mount))
	}
	return commands
}

// buildSysctlCommands applies the settings immediately and persists them.
// Keys are sorted so the generated commands are deterministic.
func buildSysctlCommands(sysctl map[string]string) []string {
	if len(sysctl) == 0 {
		return nil
	}
	keys := make([]string, 0, len(sysctl))
	for key := range sysctl {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	commands := make([]string, 0, len(keys)+1)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		setting := key + "=" + sysctl[key]
		commands = append(commands, fmt.Sprintf("sudo sysctl -w %s", shellQuote(setting)))
		lines = append(lines, shellQuote(setting))
	}
	commands = append(commands,
		fmt.Sprintf("printf '%%s\\n' %s | sudo tee /etc/sysctl.d/99-skiff.conf >/dev/null", strings.Join(lines, " ")))
	return commands
}

func buildChownCommand(user, remotePath string) string {
	owner := user + ":"
	if user == "" {
		owner = `"$(id -un):"`
		return fmt.Sprintf("sudo chown %s %s", owner, shellQuote(remotePath))
	}
	return fmt.Sprintf("sudo chown %s %s", shellQuote(owner), shellQuote(remotePath))
}
