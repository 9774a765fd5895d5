// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/retry"
	"github.com/subfish/subfish/internal/state"
)

// Timing paces calls against eventually consistent APIs.
type Timing struct {
	// Settle is the short pause after a mutation before reading it back.
	Settle time.Duration
	// Poll is the interval of hand-rolled polling loops.
	Poll time.Duration
	// WaitTimeout bounds every SDK waiter.
	WaitTimeout time.Duration
	// Backoff retries calls that fail while AWS catches up.
	Backoff retry.Linear
}

// DefaultTiming is used unless the user config overrides it.
var DefaultTiming = Timing{
	Settle:      100 * time.Millisecond,
	Poll:        5 * time.Second,
	WaitTimeout: 15 * time.Minute,
	Backoff:     retry.Default,
}

// TimingFromConfig applies timing.settle_ms, timing.poll_seconds and
// timing.wait_minutes from the user config on top of DefaultTiming.
func TimingFromConfig() Timing {
	t := DefaultTiming
	if v, err := config.GetInt("timing.settle_ms"); err == nil && v >= 0 {
		t.Settle = time.Duration(v) * time.Millisecond
	}
	if v, err := config.GetInt("timing.poll_seconds"); err == nil && v > 0 {
		t.Poll = time.Duration(v) * time.Second
	}
	if v, err := config.GetInt("timing.wait_minutes"); err == nil && v > 0 {
		t.WaitTimeout = time.Duration(v) * time.Minute
	}
	return t
}

// Base is embedded by every facade.
type Base struct {
	Store   *state.Store
	Clients *awsx.Clients
	Render  *render.Renderer
	Timing  Timing
}

// NewBase returns a Base with DefaultTiming.
func NewBase(store *state.Store, clients *awsx.Clients, r *render.Renderer) Base {
	return Base{Store: store, Clients: clients, Render: r, Timing: DefaultTiming}
}

// Pause waits Settle.
func (b *Base) Pause(ctx context.Context) error {
	return retry.Pause(ctx, b.Timing.Settle)
}

// VpcID returns the cached VPC id.
func (b *Base) VpcID() (string, error) {
	var vpc ec2types.Vpc
	if err := b.Store.Get(state.KeyVpc, &vpc); err != nil {
		return "", err
	}
	if aws.ToString(vpc.VpcId) == "" {
		return "", fmt.Errorf("%s.VpcId: %w", state.KeyVpc, state.ErrNotFound)
	}
	return aws.ToString(vpc.VpcId), nil
}

// Save persists the store.
func (b *Base) Save(ctx context.Context) error {
	return b.Store.Save(ctx)
}

// SetAndSave replaces key and persists.
func (b *Base) SetAndSave(ctx context.Context, key string, v any) error {
	if err := b.Store.Set(key, v); err != nil {
		return err
	}
	return b.Store.Save(ctx)
}

// DeleteAndSave drops key and persists.
func (b *Base) DeleteAndSave(ctx context.Context, key string) error {
	b.Store.Delete(key)
	return b.Store.Save(ctx)
}

// TemplateVars returns the vars templates are rendered with: vpc_id, vpc_cidr
// and security_groups (cached group name to id) from the cache, overridden by
// vars.
func (b *Base) TemplateVars(vars map[string]any) map[string]any {
	out := map[string]any{}
	if id, err := b.VpcID(); err == nil {
		out["vpc_id"] = id
		out["vpc_cidr"] = b.Store.Lookup(state.KeyVpc + ".CidrBlock").String()
	}

	groups := map[string]string{}
	var cached []ec2types.SecurityGroup
	if err := b.Store.Get(state.KeySecurityGroups, &cached); err == nil {
		for _, g := range cached {
			groups[aws.ToString(g.GroupName)] = aws.ToString(g.GroupId)
		}
	}
	out["security_groups"] = groups

	for k, v := range vars {
		out[k] = v
	}
	return out
}
