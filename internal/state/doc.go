// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package state is the resource cache: a key/value document holding the last
// known AWS description of every resource subfish created, persisted as YAML
// through a backend. Values are stored exactly as the AWS API returns them,
// so field names are AWS field names (VpcId, CidrBlock, Tags[].Key).
//
// A key is present only while subfish believes the resource exists.
package state
