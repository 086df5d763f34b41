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

package securitygroup_test

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skiff-cloud/skiff/pkg/cloud/cloudtest"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/securitygroup"
)

var _ = Describe("Security Group", func() {
	var (
		client *cloudtest.FakeClient
		scope  *cloudtest.FakeScope
		svc    *securitygroup.Service
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &cloudtest.FakeClient{}
		scope = &cloudtest.FakeScope{
			Client: client,
			SGName: "skiff-ssh",
			VPC:    "vpc-0123456789abcdef0",
			Logger: logr.Discard(),
		}
		svc = securitygroup.New(scope)
	})

	It("does nothing when no group name is configured", func() {
		scope.SGName = ""
		Expect(svc.Ensure(ctx)).To(Succeed())
		Expect(client.FindSecurityGroupCalls).To(BeZero())
	})

	It("reuses an existing group instead of creating a duplicate", func() {
		client.FindSecurityGroupFn = func(_ context.Context, name string) (*ec2.SecurityGroup, error) {
			Expect(name).To(Equal("skiff-ssh"))
			return &ec2.SecurityGroup{GroupId: aws.String("sg-0aa11bb22cc33dd44")}, nil
		}

		Expect(svc.Ensure(ctx)).To(Succeed())
		Expect(scope.SecurityGroup).To(Equal("sg-0aa11bb22cc33dd44"))
		Expect(client.CreateSecurityGroupCalls).To(BeZero())
	})

	It("creates the group and opens SSH ingress when it is missing", func() {
		client.FindSecurityGroupFn = func(context.Context, string) (*ec2.SecurityGroup, error) {
			return nil, nil
		}
		client.CreateSecurityGroupFn = func(_ context.Context, vpcID, name string) (string, error) {
			Expect(vpcID).To(Equal("vpc-0123456789abcdef0"))
			Expect(name).To(Equal("skiff-ssh"))
			return "sg-0aa11bb22cc33dd44", nil
		}
		client.AuthorizeSSHIngressFn = func(_ context.Context, sgID string) error {
			Expect(sgID).To(Equal("sg-0aa11bb22cc33dd44"))
			return nil
		}

		Expect(svc.Ensure(ctx)).To(Succeed())
		Expect(scope.SecurityGroup).To(Equal("sg-0aa11bb22cc33dd44"))
		Expect(client.AuthorizeSSHIngressCalls).To(Equal(1))
	})

	It("surfaces a failed create", func() {
		client.FindSecurityGroupFn = func(context.Context, string) (*ec2.SecurityGroup, error) {
			return nil, nil
		}
		client.CreateSecurityGroupFn = func(context.Context, string, string) (string, error) {
			return "", awserr.New("UnauthorizedOperation", "denied", nil)
		}

		err := svc.Ensure(ctx)
		Expect(err).To(HaveOccurred())
		Expect(scope.SecurityGroup).To(BeEmpty())
	})
})
