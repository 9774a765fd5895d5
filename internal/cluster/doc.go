// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package cluster manages the optional EKS control plane placed on the cached
// subnets, security groups and role.
package cluster
