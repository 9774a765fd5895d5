// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package inspect evaluates queries against a state document. A query is a
// path ("Vpc.VpcId", "Subnets[1].Tags{Name}"), a path printed as JSON when it
// starts with '.', or an HCL expression over the document's top-level keys
// when it starts with '/' or calls a function. Console runs the same queries
// interactively.
package inspect
