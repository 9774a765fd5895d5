// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package filters narrows the rows of status output.
//
// A filter spec is a comma separated (or $SUBFISH_FILTER_DELIM separated)
// list of key-operand-value expressions. A row is kept when it matches every
// expression. Operands:
//
//   - = : equals
//   - ~ : equals, ignoring case
//   - ^ : has prefix
//   - < : less than (numeric when both sides are numbers)
//   - > : greater than (numeric when both sides are numbers)
//   - @ : contains (substring, list element or map key)
//   - / : matches the regular expression
//
// Any operand can be negated with a leading !, e.g. "kind!=subnet" or
// "name!@test".
//
// Keys name attributes by their output key (see package attrs). A key that
// names no attribute is read from the row directly, so rows can be filtered
// on values that are not displayed.
//
// Examples:
//
//   - "kind=subnet"
//   - "state!=available"
//   - "group>0"
//   - "id^sg-"
//   - "name/^lab-[0-9]+$"
package filters
