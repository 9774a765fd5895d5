// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package network creates, refreshes and deletes the VPC and its plumbing:
// subnets, route tables, the internet gateway and NAT gateways.
//
// Every operation consults the state store first, mutates AWS only when the
// cached state says the resource is missing, and ends by refreshing the
// affected key from AWS and saving. Subnets, route tables and NAT gateways
// belong to an affinity group through the affinity_group tag.
package network
