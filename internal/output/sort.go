// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"sort"
	"strings"
)

// SortDataset stable-sorts rows by the comma separated output keys of spec.
// A key prefixed with - sorts descending and one prefixed with ! compares
// case sensitively. Numbers compare numerically, everything else as text.
func SortDataset(rows []map[string]any, spec string) {
	if strings.TrimSpace(spec) == "" {
		return
	}
	fields := strings.Split(spec, ",")

	sort.SliceStable(rows, func(one, two int) bool {
		for _, field := range fields {
			field = strings.TrimSpace(field)

			ascending := !strings.HasPrefix(field, "-")
			field = strings.TrimPrefix(field, "-")

			caseSensitive := strings.HasPrefix(field, "!")
			field = strings.TrimPrefix(field, "!")

			a, b := rows[one][field], rows[two][field]

			if an, ok := a.(float64); ok {
				if bn, ok := b.(float64); ok {
					if an == bn {
						continue
					}
					return (an < bn) == ascending
				}
			}

			as, bs := InterfaceToString(a), InterfaceToString(b)
			if !caseSensitive {
				as, bs = strings.ToLower(as), strings.ToLower(bs)
			}
			if as == bs {
				continue
			}
			return (as < bs) == ascending
		}
		return false
	})
}
