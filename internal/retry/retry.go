// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"fmt"
	"time"

	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/log"
)

// Linear retries an operation with a delay that grows by a constant Step:
// Initial, Initial+Step, Initial+2*Step, ...
type Linear struct {
	Initial     time.Duration
	Step        time.Duration
	MaxAttempts int // 0 means until ctx is done
}

// Default is the backoff used for eventually consistent EC2 calls.
var Default = Linear{
	Initial:     100 * time.Millisecond,
	Step:        100 * time.Millisecond,
	MaxAttempts: 50,
}

// sleep is swapped out by tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay returns the pause before the given 1-based retry.
func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return l.Initial + time.Duration(attempt-1)*l.Step
}

// Do calls op until it succeeds, returns an error retryable rejects, the
// attempt budget is spent, or ctx is done.
func (l Linear) Do(ctx context.Context, name string, op func(context.Context) error, retryable func(error) bool) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if l.MaxAttempts > 0 && attempt >= l.MaxAttempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}

		d := l.Delay(attempt)
		log.Debugf("%s: retry %d in %s: %v", name, attempt, d, err)
		if serr := sleep(ctx, d); serr != nil {
			return fmt.Errorf("%s: %w", name, serr)
		}
	}
}

// OnCodes retries errors carrying one of the AWS error codes.
func OnCodes(codes ...string) func(error) bool {
	return func(err error) bool {
		return awsx.IsCode(err, codes...)
	}
}

// Always retries every error.
func Always(error) bool { return true }

// Pause sleeps for d unless ctx ends first.
func Pause(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}
