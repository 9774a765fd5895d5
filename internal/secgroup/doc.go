// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package secgroup manages the security groups of the VPC and the rules
// rendered for them from sg_authorizations templates.
package secgroup
