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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	awserrors "github.com/skiff-cloud/skiff/pkg/cloud/services/errors"
	"github.com/skiff-cloud/skiff/pkg/config"
)

var _ = Describe("Exit codes", func() {
	DescribeTable("classification",
		func(err error, code int) {
			Expect(exitCode(err)).To(Equal(code))
		},
		Entry("success", nil, ExitOK),
		Entry("bad input", &awserrors.PreconditionError{Reason: "no handle"}, ExitBadInput),
		Entry("invalid configuration", &config.ValidationError{Reason: "region is required"}, ExitBadInput),
		Entry("rejected fleet request", &awserrors.ProvisionError{Err: errors.New("quota")}, ExitProvisionRejected),
		Entry("readiness timeout", &awserrors.TimeoutError{Handle: "i-1"}, ExitTimeout),
		Entry("lifecycle regression", &awserrors.LifecycleRegressionError{Handle: "i-1"}, ExitLifecycleRegression),
		Entry("anything else", errors.New("boom"), ExitFailure),
		Entry("wrapped timeout", errors.Wrap(&awserrors.TimeoutError{Handle: "i-1"}, "launch failed"), ExitTimeout),
	)
})

var _ = Describe("Command tree", func() {
	It("registers every subcommand", func() {
		root := NewRootCommand()
		names := []string{}
		for _, c := range root.Commands() {
			names = append(names, c.Name())
		}
		Expect(names).To(ContainElements("launch", "terminate", "list", "agent", "version"))
	})

	It("does not print usage on runtime errors", func() {
		root := NewRootCommand()
		Expect(root.SilenceUsage).To(BeTrue())
		Expect(root.SilenceErrors).To(BeTrue())
	})
})
