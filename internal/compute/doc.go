// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package compute manages what runs in the VPC: launch templates rendered
// from the config dir, single instances launched from them, and autoscaling
// groups backed by them.
//
// Instances and groups are placed in the subnets of an affinity group. An
// instance is only launched when none from the same template is pending or
// running there already.
package compute
