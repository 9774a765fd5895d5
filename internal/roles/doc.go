// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package roles manages IAM roles: the trust policy comes from
// assume_policies, managed policies are attached by name or ARN and an
// optional inline policy comes from role_policies.
package roles
