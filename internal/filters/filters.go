// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/subfish/subfish/internal/attrs"
	"github.com/subfish/subfish/internal/driller"
	"github.com/subfish/subfish/internal/log"
)

// filterRegex splits an expression into key, optionally negated operand and
// value, e.g. "name", "name=lab", "name!@test".
var filterRegex = regexp.MustCompile(`^([^!=^~<>@/]*)(!?[=^~<>@/])?(.*)$`)

// Filter is one parsed expression.
type Filter struct {
	Key     string `yaml:"key" json:"Key"`
	Negate  bool   `yaml:"negate" json:"Negate"`
	Operand string `yaml:"operand" json:"Operand"`
	Value   string `yaml:"value" json:"Value"`
}

// BuildFilters parses spec. Malformed expressions are logged and skipped.
func BuildFilters(spec string) []Filter {
	//nolint:prealloc
	var filters []Filter

	if spec == "" {
		return filters
	}

	delim := ","
	if d, ok := os.LookupEnv("SUBFISH_FILTER_DELIM"); ok && d != "" {
		delim = d
	}

	for _, expr := range strings.Split(spec, delim) {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}

		parts := filterRegex.FindStringSubmatch(expr)
		key := strings.TrimSpace(parts[1])
		if key == "" {
			log.Errorf("invalid filter: empty key in %s", expr)
			continue
		}

		operand := parts[2]
		negate := strings.HasPrefix(operand, "!")
		operand = strings.TrimPrefix(operand, "!")
		if operand == "" {
			log.Errorf("invalid filter: no operand in %s", expr)
			continue
		}

		filters = append(filters, Filter{
			Key:     key,
			Negate:  negate,
			Operand: operand,
			Value:   parts[3],
		})
	}

	return filters
}

// FilterDataset keeps the candidates matching spec and projects each onto
// attrs, keyed by output key. Transforms are left to the output phase.
func FilterDataset(candidates gjson.Result, al attrs.AttrList, spec string) []map[string]any {
	//nolint:prealloc
	var rows []map[string]any

	filters := BuildFilters(spec)

	for _, candidate := range candidates.Array() {
		if !applyFilters(candidate, al, filters) {
			continue
		}

		row := make(map[string]any, len(al))
		for _, attr := range al {
			if attr.Key == "*" {
				continue
			}
			row[attr.OutputKey] = driller.Driller(candidate.Raw, attr.Key).Value()
		}
		rows = append(rows, row)
	}

	return rows
}

// applyFilters reports whether candidate matches every filter.
func applyFilters(candidate gjson.Result, al attrs.AttrList, filters []Filter) bool {
	for _, filter := range filters {
		key := filter.Key
		if attr, ok := al.Lookup(filter.Key); ok {
			key = attr.Key
		}

		value := driller.Driller(candidate.Raw, key).Value()
		if value == nil {
			return filter.Negate
		}

		var ok bool
		switch v := value.(type) {
		case string:
			ok = checkStringOperand(v, filter)
		case bool:
			ok = checkStringOperand(strconv.FormatBool(v), filter)
		case float64:
			ok = checkNumericOperand(v, filter)
		default:
			ok = checkContainsOperand(value, filter)
		}

		if !ok {
			return false
		}
	}

	return true
}

// checkContainsOperand evaluates @ against a list or map value. Other
// operands never match composite values.
func checkContainsOperand(value any, filter Filter) bool {
	if filter.Operand != "@" {
		log.Debugf("operand %s unsupported for %T", filter.Operand, value)
		return false
	}

	switch val := value.(type) {
	case []any:
		for _, item := range val {
			if fmt.Sprint(item) == filter.Value {
				return !filter.Negate
			}
		}
		return filter.Negate
	case map[string]any:
		_, found := val[filter.Value]
		return found != filter.Negate
	default:
		log.Errorf("unsupported type for contains filtering: %T", value)
		return false
	}
}

// checkNumericOperand compares numerically when the filter value is a number
// and falls back to string semantics otherwise.
func checkNumericOperand(value float64, filter Filter) bool {
	tgt, err := strconv.ParseFloat(strings.TrimSpace(filter.Value), 64)
	if err != nil {
		return checkStringOperand(strconv.FormatFloat(value, 'f', -1, 64), filter)
	}

	switch filter.Operand {
	case "=", "~":
		return (value == tgt) != filter.Negate
	case ">":
		return (value > tgt) != filter.Negate
	case "<":
		return (value < tgt) != filter.Negate
	default:
		return checkStringOperand(strconv.FormatFloat(value, 'f', -1, 64), filter)
	}
}

// checkStringOperand evaluates filter against a string value.
func checkStringOperand(value string, filter Filter) bool {
	var match bool
	switch filter.Operand {
	case "=":
		match = value == filter.Value
	case "~":
		match = strings.EqualFold(value, filter.Value)
	case "^":
		match = strings.HasPrefix(value, filter.Value)
	case ">":
		match = value > filter.Value
	case "<":
		match = value < filter.Value
	case "@":
		match = strings.Contains(value, filter.Value)
	case "/":
		re, err := regexp.Compile(filter.Value)
		if err != nil {
			log.Errorf("invalid regex: %s", filter.Value)
			return false
		}
		match = re.MatchString(value)
	default:
		log.Errorf("unsupported filtering operand: %s", filter.Operand)
		return false
	}
	return match != filter.Negate
}
