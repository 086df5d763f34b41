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

package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

// Config is the single immutable launch configuration handed to the scope.
// Flags may override individual fields before the scope is constructed; after
// that nothing mutates it.
type Config struct {
	// Name tags the instance so it can be found again by `skiff list`.
	Name string `yaml:"name"`

	// Region is the provider region to operate in.
	Region string `yaml:"region"`

	// EnvFile is an optional dotenv file with provider credentials.
	EnvFile string `yaml:"envFile"`

	// InstanceID reuses an existing instance instead of requesting a fleet.
	InstanceID string `yaml:"instanceId"`

	LaunchTemplate LaunchTemplate `yaml:"launchTemplate"`
	Overrides      Overrides      `yaml:"overrides"`
	Volume         Volume         `yaml:"volume"`
	SecurityGroup  SecurityGroup  `yaml:"securityGroup"`
	Wait           Wait           `yaml:"wait"`
	SSH            SSH            `yaml:"ssh"`
	Provision      Provision      `yaml:"provision"`
}

// LaunchTemplate references the provider-side template the fleet request is
// built from. Either ID or Name must be set unless InstanceID is given.
type LaunchTemplate struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Overrides adjust the launch template per launch.
type Overrides struct {
	InstanceType     string `yaml:"instanceType"`
	SubnetID         string `yaml:"subnetId"`
	AvailabilityZone string `yaml:"availabilityZone"`
	Spot             bool   `yaml:"spot"`
}

// Volume optionally attaches a persistent volume after the instance is ready.
type Volume struct {
	ID     string `yaml:"id"`
	Device string `yaml:"device"`
}

// SecurityGroup optionally ensures an SSH-ingress security group exists
// before launching.
type SecurityGroup struct {
	Name  string `yaml:"name"`
	VPCID string `yaml:"vpcId"`
}

// Wait configures the readiness poller bounds.
type Wait struct {
	PollInterval Duration `yaml:"pollInterval"`
	Timeout      Duration `yaml:"timeout"`
	MaxAttempts  int      `yaml:"maxAttempts"`
}

// SSH configures how the provisioning pipeline reaches the instance.
type SSH struct {
	User     string `yaml:"user"`
	Port     int    `yaml:"port"`
	KeyPath  string `yaml:"keyPath"`
	UseAgent bool   `yaml:"useAgent"`
}

// Provision configures the first-boot steps executed over SSH.
type Provision struct {
	Skip       bool              `yaml:"skip"`
	User       string            `yaml:"user"`
	Groups     []string          `yaml:"groups"`
	Packages   []string          `yaml:"packages"`
	Dotfiles   string            `yaml:"dotfiles"`
	MountPoint string            `yaml:"mountPoint"`
	Filesystem string            `yaml:"filesystem"`
	Sysctl     map[string]string `yaml:"sysctl"`
}

// Duration parses YAML duration strings like "15s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads, defaults, and validates a launch configuration file.
func Load(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile parses a configuration file without defaulting or validating it,
// so callers can layer flag overrides on top first.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return cfg, nil
}

// ApplyDefaults fills zero fields with usable values. It is idempotent.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "skiff"
	}
	if c.Region == "" {
		c.Region = os.Getenv("AWS_REGION")
	}
	if c.Volume.ID != "" && c.Volume.Device == "" {
		c.Volume.Device = "/dev/sdf"
	}
	if c.Wait.PollInterval == 0 {
		c.Wait.PollInterval = Duration(instance.DefaultPollInterval)
	}
	if c.Wait.Timeout == 0 && c.Wait.MaxAttempts == 0 {
		c.Wait.Timeout = Duration(instance.DefaultWaitTimeout)
	}
	if c.SSH.User == "" {
		c.SSH.User = "ec2-user"
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.Provision.MountPoint == "" {
		c.Provision.MountPoint = "/data"
	}
	if c.Provision.Filesystem == "" {
		c.Provision.Filesystem = "ext4"
	}
}

// ValidationError reports an unusable configuration.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Reason
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func (c *Config) Validate() error {
	if c.Region == "" {
		return &ValidationError{Reason: "region is required (config or AWS_REGION)"}
	}
	if c.InstanceID == "" && c.LaunchTemplate.ID == "" && c.LaunchTemplate.Name == "" {
		return &ValidationError{Reason: "either instanceId or a launch template (id or name) is required"}
	}
	if c.LaunchTemplate.ID != "" && c.LaunchTemplate.Name != "" {
		return &ValidationError{Reason: "launch template id and name are mutually exclusive"}
	}
	if c.Wait.PollInterval.Std() < 0 || c.Wait.Timeout.Std() < 0 || c.Wait.MaxAttempts < 0 {
		return &ValidationError{Reason: "wait bounds must not be negative"}
	}
	return nil
}

// WaitPolicy converts the wait section into the poller policy.
func (c *Config) WaitPolicy() instance.WaitPolicy {
	return instance.WaitPolicy{
		PollInterval: c.Wait.PollInterval.Std(),
		MaxAttempts:  c.Wait.MaxAttempts,
		Timeout:      c.Wait.Timeout.Std(),
	}
}
