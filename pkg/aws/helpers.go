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

package aws

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
)

func GetNameFromTags(tags []*ec2.Tag) string {
	for _, tag := range tags {
		if aws.StringValue(tag.Key) == "Name" {
			return aws.StringValue(tag.Value)
		}
	}
	return ""
}

// PublicAddress resolves the public address of an instance, preferring the
// address association on the primary network interface.
func PublicAddress(inst *ec2.Instance) string {
	if inst == nil {
		return ""
	}
	if len(inst.NetworkInterfaces) > 0 {
		if assoc := inst.NetworkInterfaces[0].Association; assoc != nil && assoc.PublicIp != nil {
			return aws.StringValue(assoc.PublicIp)
		}
	}
	return aws.StringValue(inst.PublicIpAddress)
}
