// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package driller reads values out of cached AWS descriptions with a forgiving
// dotted path: single element lists are stepped through, lists can be indexed
// and AWS tag lists can be selected by tag key.
package driller
