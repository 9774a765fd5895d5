// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package driller

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// segmentRegex matches key, key[], key[N], key[*] and key{TagKey}.
var segmentRegex = regexp.MustCompile(`^([a-zA-Z0-9_-]+)(?:\[(\d+|\*)?\]|\{([^}]+)\})?$`)

// Driller navigates jsonData along a dot path such as "Subnets[1].CidrBlock"
// or "Vpc.Tags{Name}". A list is stepped into when it has a single element
// or is indexed; key{TagKey} reads the Value of the element of an AWS tag
// list whose Key is TagKey. Invalid or unmatched paths return an empty
// result.
func Driller(jsonData string, path string) gjson.Result {
	current := gjson.Parse(jsonData)

	for _, p := range strings.Split(path, ".") {
		matches := segmentRegex.FindStringSubmatch(p)
		if matches == nil {
			return gjson.Result{}
		}
		key, index, tag := matches[1], matches[2], matches[3]

		val := current.Get(key)

		switch {
		case tag != "":
			val = tagValue(val, tag)
		case val.IsArray() && index == "*":
			// Keep the whole list.
		case val.IsArray() && index != "":
			i, _ := strconv.Atoi(index)
			arr := val.Array()
			if i >= len(arr) {
				return gjson.Result{}
			}
			val = arr[i]
		case val.IsArray():
			if arr := val.Array(); len(arr) == 1 {
				val = arr[0]
			}
		}

		current = val
	}

	return current
}

// tagValue returns the Value of the element of tags whose Key is key.
func tagValue(tags gjson.Result, key string) gjson.Result {
	for _, t := range tags.Array() {
		if t.Get("Key").String() == key {
			return t.Get("Value")
		}
	}
	return gjson.Result{}
}
