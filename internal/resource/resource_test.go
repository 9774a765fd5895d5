// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package resource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/state"
)

func TestAffinity(t *testing.T) {
	tests := []struct {
		name  string
		tags  []ec2types.Tag
		group int
		ok    bool
	}{
		{"none", nil, 0, false},
		{"other tags", []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("x")}}, 0, false},
		{"group 0", []ec2types.Tag{AffinityTag(0)}, 0, true},
		{"group 3", []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("x")}, AffinityTag(3)}, 3, true},
		{"garbage", []ec2types.Tag{{Key: aws.String(AffinityKey), Value: aws.String("a")}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, ok := Affinity(tt.tags)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.group, g)
			assert.Equal(t, tt.ok, InGroup(tt.tags, tt.group))
		})
	}

	assert.False(t, InGroup([]ec2types.Tag{AffinityTag(1)}, 0))
}

func TestAffinityTag(t *testing.T) {
	tag := AffinityTag(2)
	assert.Equal(t, "affinity_group", aws.ToString(tag.Key))
	assert.Equal(t, "2", aws.ToString(tag.Value))

	v, ok := TagValue([]ec2types.Tag{tag}, AffinityKey)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestFilter(t *testing.T) {
	f := Filter("vpc-id", "vpc-1", "vpc-2")
	assert.Equal(t, "vpc-id", aws.ToString(f.Name))
	assert.Equal(t, []string{"vpc-1", "vpc-2"}, f.Values)
}

func TestVpcID(t *testing.T) {
	b := NewBase(state.New(), nil, nil)

	_, err := b.VpcID()
	assert.True(t, errors.Is(err, state.ErrNotFound))

	require.NoError(t, b.Store.Set(state.KeyVpc, ec2types.Vpc{VpcId: aws.String("vpc-1")}))
	id, err := b.VpcID()
	require.NoError(t, err)
	assert.Equal(t, "vpc-1", id)
}

func TestTimingFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subfish.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timing:\n  settle_ms: 0\n  poll_seconds: 2\n"), 0o600))
	t.Setenv("SUBFISH_CFG_FILE", path)
	_, err := config.Load()
	require.NoError(t, err)
	t.Cleanup(func() { config.Config = config.Type{} })

	got := TimingFromConfig()
	assert.Equal(t, time.Duration(0), got.Settle)
	assert.Equal(t, 2*time.Second, got.Poll)
	assert.Equal(t, DefaultTiming.WaitTimeout, got.WaitTimeout)
}

func TestTemplateVars(t *testing.T) {
	store := state.New()
	b := NewBase(store, nil, nil)

	vars := b.TemplateVars(map[string]any{"name": "bastion"})
	assert.Equal(t, map[string]any{"name": "bastion", "security_groups": map[string]string{}}, vars)

	require.NoError(t, store.Set(state.KeyVpc, ec2types.Vpc{VpcId: aws.String("vpc-1"), CidrBlock: aws.String("10.1.0.0/16")}))
	require.NoError(t, store.Set(state.KeySecurityGroups, []ec2types.SecurityGroup{
		{GroupId: aws.String("sg-1"), GroupName: aws.String("bastion")},
	}))

	vars = b.TemplateVars(map[string]any{"vpc_cidr": "override"})
	assert.Equal(t, "vpc-1", vars["vpc_id"])
	assert.Equal(t, "override", vars["vpc_cidr"], "caller vars win")
	assert.Equal(t, map[string]string{"bastion": "sg-1"}, vars["security_groups"])
}
