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

package volumes_test

import (
	"context"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skiff-cloud/skiff/pkg/cloud/cloudtest"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
	"github.com/skiff-cloud/skiff/pkg/cloud/services/volumes"
)

var _ = Describe("Volume Attacher", func() {
	var (
		client *cloudtest.FakeClient
		scope  *cloudtest.FakeScope
		svc    *volumes.Service
		ctx    context.Context
		handle instance.Handle
	)

	BeforeEach(func() {
		ctx = context.Background()
		handle = instance.Handle("i-0123456789abcdef0")
		client = &cloudtest.FakeClient{}
		scope = &cloudtest.FakeScope{
			Client: client,
			Volume: "vol-0aa11bb22cc33dd44",
			Device: "/dev/sdf",
			Logger: logr.Discard(),
		}
		svc = volumes.New(scope)
	})

	It("does nothing when no volume is configured", func() {
		scope.Volume = ""
		Expect(svc.Ensure(ctx, handle)).To(Succeed())
		Expect(client.DescribeVolumeCalls).To(BeZero())
	})

	It("attaches an available volume at the configured device", func() {
		client.DescribeVolumeFn = func(context.Context, string) (instance.VolumeState, error) {
			return instance.VolumeAvailable, nil
		}
		client.AttachVolumeFn = func(_ context.Context, h instance.Handle, volumeID, device string) error {
			Expect(h).To(Equal(handle))
			Expect(volumeID).To(Equal("vol-0aa11bb22cc33dd44"))
			Expect(device).To(Equal("/dev/sdf"))
			return nil
		}

		Expect(svc.Ensure(ctx, handle)).To(Succeed())
		Expect(client.AttachVolumeCalls).To(Equal(1))
	})

	It("skips a volume that is already in use", func() {
		client.DescribeVolumeFn = func(context.Context, string) (instance.VolumeState, error) {
			return instance.VolumeInUse, nil
		}

		Expect(svc.Ensure(ctx, handle)).To(Succeed())
		Expect(client.AttachVolumeCalls).To(BeZero())
	})

	It("skips a volume that does not exist", func() {
		client.DescribeVolumeFn = func(context.Context, string) (instance.VolumeState, error) {
			return instance.VolumeMissing, nil
		}

		Expect(svc.Ensure(ctx, handle)).To(Succeed())
		Expect(client.AttachVolumeCalls).To(BeZero())
	})

	It("continues when the volume state cannot be determined", func() {
		client.DescribeVolumeFn = func(context.Context, string) (instance.VolumeState, error) {
			return instance.VolumeUnknown, awserr.New("InternalError", "boom", nil)
		}

		Expect(svc.Ensure(ctx, handle)).To(Succeed())
		Expect(client.AttachVolumeCalls).To(BeZero())
	})

	It("continues when the attach call is rejected", func() {
		client.DescribeVolumeFn = func(context.Context, string) (instance.VolumeState, error) {
			return instance.VolumeAvailable, nil
		}
		client.AttachVolumeFn = func(context.Context, instance.Handle, string, string) error {
			return awserr.New("VolumeInUse", "already attached elsewhere", nil)
		}

		Expect(svc.Ensure(ctx, handle)).To(Succeed())
	})

	It("surfaces context cancellation", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := svc.Ensure(cancelled, handle)
		Expect(err).To(MatchError(context.Canceled))
	})
})
