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

package aws_test

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	skiffaws "github.com/skiff-cloud/skiff/pkg/aws"
	"github.com/skiff-cloud/skiff/pkg/cloud/instance"
)

// fakeEC2 stubs the handful of EC2 calls the client makes. Unstubbed calls
// panic through the embedded nil interface.
type fakeEC2 struct {
	ec2iface.EC2API

	createFleet            func(*ec2.CreateFleetInput) (*ec2.CreateFleetOutput, error)
	describeInstanceStatus func(*ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error)
	describeInstances      func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
	describeVolumes        func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error)
}

func (f *fakeEC2) CreateFleetWithContext(_ aws.Context, input *ec2.CreateFleetInput, _ ...request.Option) (*ec2.CreateFleetOutput, error) {
	return f.createFleet(input)
}

func (f *fakeEC2) DescribeInstanceStatusWithContext(_ aws.Context, input *ec2.DescribeInstanceStatusInput, _ ...request.Option) (*ec2.DescribeInstanceStatusOutput, error) {
	return f.describeInstanceStatus(input)
}

func (f *fakeEC2) DescribeInstancesWithContext(_ aws.Context, input *ec2.DescribeInstancesInput, _ ...request.Option) (*ec2.DescribeInstancesOutput, error) {
	return f.describeInstances(input)
}

func (f *fakeEC2) DescribeVolumesWithContext(_ aws.Context, input *ec2.DescribeVolumesInput, _ ...request.Option) (*ec2.DescribeVolumesOutput, error) {
	return f.describeVolumes(input)
}

var _ = Describe("AWSClient", func() {
	var (
		fake   *fakeEC2
		client *skiffaws.AWSClient
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeEC2{}
		client = &skiffaws.AWSClient{EC2: fake}
	})

	Describe("RequestFleet", func() {
		params := skiffaws.RequestFleetParams{
			Name:             "dev-box",
			LaunchTemplateID: "lt-0123456789abcdef0",
			InstanceType:     "c5.xlarge",
			Spot:             true,
			ClientToken:      "token-1",
		}

		It("builds an instant single-instance fleet request", func() {
			fake.createFleet = func(input *ec2.CreateFleetInput) (*ec2.CreateFleetOutput, error) {
				Expect(aws.StringValue(input.Type)).To(Equal(ec2.FleetTypeInstant))
				Expect(input.LaunchTemplateConfigs).To(HaveLen(1))

				spec := input.LaunchTemplateConfigs[0].LaunchTemplateSpecification
				Expect(aws.StringValue(spec.LaunchTemplateId)).To(Equal("lt-0123456789abcdef0"))
				Expect(aws.StringValue(spec.Version)).To(Equal("$Latest"))

				overrides := input.LaunchTemplateConfigs[0].Overrides
				Expect(overrides).To(HaveLen(1))
				Expect(aws.StringValue(overrides[0].InstanceType)).To(Equal("c5.xlarge"))

				capacity := input.TargetCapacitySpecification
				Expect(aws.Int64Value(capacity.TotalTargetCapacity)).To(Equal(int64(1)))
				Expect(aws.StringValue(capacity.DefaultTargetCapacityType)).To(Equal(ec2.DefaultTargetCapacityTypeSpot))

				Expect(aws.StringValue(input.ClientToken)).To(Equal("token-1"))

				return &ec2.CreateFleetOutput{
					Instances: []*ec2.CreateFleetInstance{
						{InstanceIds: aws.StringSlice([]string{"i-0123456789abcdef0"})},
					},
				}, nil
			}

			handle, err := client.RequestFleet(ctx, params)
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.String()).To(Equal("i-0123456789abcdef0"))
		})

		It("tags the instance as managed", func() {
			fake.createFleet = func(input *ec2.CreateFleetInput) (*ec2.CreateFleetOutput, error) {
				Expect(input.TagSpecifications).To(HaveLen(1))
				tags := map[string]string{}
				for _, tag := range input.TagSpecifications[0].Tags {
					tags[aws.StringValue(tag.Key)] = aws.StringValue(tag.Value)
				}
				Expect(tags).To(HaveKeyWithValue("Name", "dev-box"))
				Expect(tags).To(HaveKeyWithValue(skiffaws.ManagedTag, "true"))
				return &ec2.CreateFleetOutput{
					Instances: []*ec2.CreateFleetInstance{
						{InstanceIds: aws.StringSlice([]string{"i-0123456789abcdef0"})},
					},
				}, nil
			}

			_, err := client.RequestFleet(ctx, params)
			Expect(err).NotTo(HaveOccurred())
		})

		It("surfaces a fleet-level error when no instance is returned", func() {
			fake.createFleet = func(*ec2.CreateFleetInput) (*ec2.CreateFleetOutput, error) {
				return &ec2.CreateFleetOutput{
					Errors: []*ec2.CreateFleetError{
						{
							ErrorCode:    aws.String("InsufficientInstanceCapacity"),
							ErrorMessage: aws.String("no capacity"),
						},
					},
				}, nil
			}

			_, err := client.RequestFleet(ctx, params)
			Expect(err).To(MatchError(ContainSubstring("InsufficientInstanceCapacity")))
		})

		It("requires a launch template reference", func() {
			_, err := client.RequestFleet(ctx, skiffaws.RequestFleetParams{Name: "dev-box"})
			Expect(err).To(MatchError(ContainSubstring("launch template")))
		})
	})

	Describe("DescribeInstanceStatus", func() {
		It("asks for the instance in every lifecycle state", func() {
			fake.describeInstanceStatus = func(input *ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error) {
				Expect(aws.BoolValue(input.IncludeAllInstances)).To(BeTrue())
				return &ec2.DescribeInstanceStatusOutput{}, nil
			}

			_, err := client.DescribeInstanceStatus(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
		})

		It("reads all-unknown when the instance is not visible yet", func() {
			fake.describeInstanceStatus = func(*ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error) {
				return &ec2.DescribeInstanceStatusOutput{}, nil
			}

			snapshot, err := client.DescribeInstanceStatus(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot).To(Equal(instance.UnknownSnapshot()))
		})

		It("maps all three status axes", func() {
			fake.describeInstanceStatus = func(*ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error) {
				return &ec2.DescribeInstanceStatusOutput{
					InstanceStatuses: []*ec2.InstanceStatus{
						{
							InstanceState:  &ec2.InstanceState{Name: aws.String("running")},
							SystemStatus:   &ec2.InstanceStatusSummary{Status: aws.String("ok")},
							InstanceStatus: &ec2.InstanceStatusSummary{Status: aws.String("initializing")},
						},
					},
				}, nil
			}

			snapshot, err := client.DescribeInstanceStatus(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.Lifecycle).To(Equal(instance.LifecycleRunning))
			Expect(snapshot.System).To(Equal(instance.HealthOK))
			Expect(snapshot.Instance).To(Equal(instance.HealthUnknown))
		})

		It("leaves absent axes unknown", func() {
			fake.describeInstanceStatus = func(*ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error) {
				return &ec2.DescribeInstanceStatusOutput{
					InstanceStatuses: []*ec2.InstanceStatus{
						{InstanceState: &ec2.InstanceState{Name: aws.String("pending")}},
					},
				}, nil
			}

			snapshot, err := client.DescribeInstanceStatus(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.Lifecycle).To(Equal(instance.LifecyclePending))
			Expect(snapshot.System).To(Equal(instance.HealthUnknown))
			Expect(snapshot.Instance).To(Equal(instance.HealthUnknown))
		})
	})

	Describe("FindInstanceByID", func() {
		It("returns nil for an unknown instance ID", func() {
			fake.describeInstances = func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
				return nil, awserr.New("InvalidInstanceID.NotFound", "does not exist", nil)
			}

			inst, err := client.FindInstanceByID(ctx, "i-0000000000000dead")
			Expect(err).NotTo(HaveOccurred())
			Expect(inst).To(BeNil())
		})

		It("finds the instance across reservations", func() {
			fake.describeInstances = func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
				return &ec2.DescribeInstancesOutput{
					Reservations: []*ec2.Reservation{
						{Instances: []*ec2.Instance{{InstanceId: aws.String("i-0123456789abcdef0")}}},
					},
				}, nil
			}

			inst, err := client.FindInstanceByID(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
			Expect(aws.StringValue(inst.InstanceId)).To(Equal("i-0123456789abcdef0"))
		})
	})

	Describe("IsManagedInstance", func() {
		It("recognizes the managed tag", func() {
			fake.describeInstances = func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
				return &ec2.DescribeInstancesOutput{
					Reservations: []*ec2.Reservation{
						{Instances: []*ec2.Instance{{
							InstanceId: aws.String("i-0123456789abcdef0"),
							Tags: []*ec2.Tag{
								{Key: aws.String(skiffaws.ManagedTag), Value: aws.String("true")},
							},
						}}},
					},
				}, nil
			}

			managed, err := client.IsManagedInstance(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
			Expect(managed).To(BeTrue())
		})

		It("treats untagged instances as unmanaged", func() {
			fake.describeInstances = func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
				return &ec2.DescribeInstancesOutput{
					Reservations: []*ec2.Reservation{
						{Instances: []*ec2.Instance{{InstanceId: aws.String("i-0123456789abcdef0")}}},
					},
				}, nil
			}

			managed, err := client.IsManagedInstance(ctx, "i-0123456789abcdef0")
			Expect(err).NotTo(HaveOccurred())
			Expect(managed).To(BeFalse())
		})
	})

	Describe("DescribeVolume", func() {
		volumeState := func(state string) func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error) {
			return func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error) {
				return &ec2.DescribeVolumesOutput{
					Volumes: []*ec2.Volume{{State: aws.String(state)}},
				}, nil
			}
		}

		It("classifies available and in-use volumes", func() {
			fake.describeVolumes = volumeState(ec2.VolumeStateAvailable)
			state, err := client.DescribeVolume(ctx, "vol-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(instance.VolumeAvailable))

			fake.describeVolumes = volumeState(ec2.VolumeStateInUse)
			state, err = client.DescribeVolume(ctx, "vol-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(instance.VolumeInUse))
		})

		It("classifies a not-found volume as missing rather than an error", func() {
			fake.describeVolumes = func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error) {
				return nil, awserr.New("InvalidVolume.NotFound", "gone", nil)
			}

			state, err := client.DescribeVolume(ctx, "vol-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(instance.VolumeMissing))
		})

		It("classifies transitional states as unknown", func() {
			fake.describeVolumes = volumeState(ec2.VolumeStateCreating)
			state, err := client.DescribeVolume(ctx, "vol-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(instance.VolumeUnknown))
		})
	})
})
