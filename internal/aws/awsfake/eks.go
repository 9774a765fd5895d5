// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package awsfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	awsx "github.com/subfish/subfish/internal/aws"
)

var _ awsx.EKSAPI = (*EKS)(nil)

// EKS is an in-memory EKS control plane. Clusters are ACTIVE on creation and
// gone as soon as they are deleted.
type EKS struct {
	recorder

	region   string
	mu       sync.Mutex
	clusters map[string]*ekstypes.Cluster
}

// NewEKS returns an EKS without clusters.
func NewEKS(region string) *EKS {
	return &EKS{region: region, clusters: map[string]*ekstypes.Cluster{}}
}

func clusterNotFound(name string) error {
	return &ekstypes.ResourceNotFoundException{Message: aws.String("No cluster found for name: " + name + ".")}
}

func (f *EKS) CreateCluster(_ context.Context, in *eks.CreateClusterInput, _ ...func(*eks.Options)) (*eks.CreateClusterOutput, error) {
	if err := f.record("CreateCluster"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.Name)
	if _, ok := f.clusters[name]; ok {
		return nil, &ekstypes.ResourceInUseException{Message: aws.String("Cluster already exists with name: " + name)}
	}
	if aws.ToString(in.RoleArn) == "" || in.ResourcesVpcConfig == nil || len(in.ResourcesVpcConfig.SubnetIds) < 2 {
		return nil, &ekstypes.InvalidParameterException{Message: aws.String("a role and at least two subnets are required")}
	}
	version := aws.ToString(in.Version)
	if version == "" {
		version = "1.31"
	}

	c := &ekstypes.Cluster{
		Name:     aws.String(name),
		Arn:      aws.String(fmt.Sprintf("arn:aws:eks:%s:%s:cluster/%s", f.region, Account, name)),
		RoleArn:  in.RoleArn,
		Version:  aws.String(version),
		Status:   ekstypes.ClusterStatusActive,
		Endpoint: aws.String(fmt.Sprintf("https://%s.gr7.%s.eks.amazonaws.com", name, f.region)),
		ResourcesVpcConfig: &ekstypes.VpcConfigResponse{
			SubnetIds:        in.ResourcesVpcConfig.SubnetIds,
			SecurityGroupIds: in.ResourcesVpcConfig.SecurityGroupIds,
		},
		CreatedAt: aws.Time(time.Now()),
		Tags:      in.Tags,
	}
	f.clusters[name] = c
	out := *c
	out.Status = ekstypes.ClusterStatusCreating
	return &eks.CreateClusterOutput{Cluster: &out}, nil
}

func (f *EKS) DescribeCluster(_ context.Context, in *eks.DescribeClusterInput, _ ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
	if err := f.record("DescribeCluster"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.clusters[aws.ToString(in.Name)]
	if !ok {
		return nil, clusterNotFound(aws.ToString(in.Name))
	}
	out := *c
	return &eks.DescribeClusterOutput{Cluster: &out}, nil
}

func (f *EKS) DeleteCluster(_ context.Context, in *eks.DeleteClusterInput, _ ...func(*eks.Options)) (*eks.DeleteClusterOutput, error) {
	if err := f.record("DeleteCluster"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(in.Name)
	c, ok := f.clusters[name]
	if !ok {
		return nil, clusterNotFound(name)
	}
	delete(f.clusters, name)
	out := *c
	out.Status = ekstypes.ClusterStatusDeleting
	return &eks.DeleteClusterOutput{Cluster: &out}, nil
}
