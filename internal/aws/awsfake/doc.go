// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package awsfake provides in-memory EC2, IAM, EKS, Auto Scaling and STS
// clients that satisfy the interfaces in internal/aws. They model enough of
// each service (ids, filters, tags, dependency checks, modeled errors) for the
// resource facades and the SDK waiters to run against them in unit tests.
//
// Resources become available as soon as they are created so waiters succeed
// on their first poll. Errors can be queued per operation with FailNext.
package awsfake
