// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package aws loads SDK configuration and builds the service clients used by
// the resource facades. The clients are exposed as narrow interfaces
// (EC2API, IAMAPI, EKSAPI, AutoScalingAPI, STSAPI) so the awsfake package can
// stand in for them in tests.
package aws
