// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleeps replaces sleep with a recorder for the life of the test.
func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestDelay(t *testing.T) {
	l := Linear{Initial: 100 * time.Millisecond, Step: 100 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, l.Delay(0))
	assert.Equal(t, 100*time.Millisecond, l.Delay(1))
	assert.Equal(t, 200*time.Millisecond, l.Delay(2))
	assert.Equal(t, 500*time.Millisecond, l.Delay(5))
}

func TestDo_LinearBackoffUntilSuccess(t *testing.T) {
	slept := recordSleeps(t)
	notFound := &smithy.GenericAPIError{Code: "InvalidRouteTableID.NotFound"}

	calls := 0
	err := Default.Do(context.Background(), "tag", func(context.Context) error {
		calls++
		if calls < 4 {
			return notFound
		}
		return nil
	}, OnCodes("InvalidRouteTableID.NotFound"))

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}, *slept)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	slept := recordSleeps(t)
	boom := &smithy.GenericAPIError{Code: "UnauthorizedOperation"}

	calls := 0
	err := Default.Do(context.Background(), "tag", func(context.Context) error {
		calls++
		return boom
	}, OnCodes("InvalidRouteTableID.NotFound"))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestDo_GivesUp(t *testing.T) {
	recordSleeps(t)
	boom := errors.New("waiter: exceeded max wait time")

	calls := 0
	err := Linear{Initial: time.Millisecond, Step: time.Millisecond, MaxAttempts: 3}.Do(
		context.Background(), "wait", func(context.Context) error {
			calls++
			return boom
		}, Always)

	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "gave up after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	recordSleeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Default.Do(ctx, "wait", func(context.Context) error {
		return errors.New("not yet")
	}, Always)

	assert.ErrorIs(t, err, context.Canceled)
}
