// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package attrs

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/subfish/subfish/internal/log"
)

// lengthRegex finds the length directives in a transform spec.
var lengthRegex = regexp.MustCompile(`-?\d+`)

// Attr is one column of status output: where to read it from each row, what
// to call it and how to reshape its value.
type Attr struct {
	// Key is the gjson-style path read from each row.
	Key string `yaml:"key" json:"Key"`
	// Include is false for attrs that only exist for filtering and sorting.
	Include bool `yaml:"include" json:"Include"`
	// OutputKey names the value in json/yaml output and titles the column in
	// text output.
	OutputKey string `yaml:"outputKey" json:"OutputKey"`
	// TransformSpec is a run of transform directives:
	//   t  RFC3339 timestamp to local time
	//   T  RFC3339 timestamp to a relative age ("3 hours ago")
	//   l  lower case, u upper case (the last one wins)
	//   N  truncate to N chars, -N elide the middle to N chars
	TransformSpec string `yaml:"transformSpec" json:"TransformSpec"`
}

// Transform applies the transform spec to value. Only strings are reshaped;
// anything else comes back untouched.
func (a *Attr) Transform(value any) any {
	result, ok := value.(string)
	if !ok {
		log.Tracef("non-string value: key=%s value=%v", a.Key, value)
		return value
	}

	if strings.ContainsAny(a.TransformSpec, "tT") {
		if t, err := time.Parse(time.RFC3339, result); err == nil {
			local := t.In(time.Local)
			if strings.Contains(a.TransformSpec, "T") {
				result = humanize.Time(local)
			} else {
				result = local.Format("2006-01-02T15:04:05MST")
			}
			log.Tracef("time transform: key=%s result=%s", a.Key, result)
		}
	}

	// The last case directive wins so an attr's own spec overrides a global
	// one prepended to it, e.g. --attrs '*::u,name::l'.
	lastL := strings.LastIndexAny(a.TransformSpec, "lL")
	lastU := strings.LastIndexAny(a.TransformSpec, "uU")
	switch {
	case lastL > lastU:
		result = strings.ToLower(result)
	case lastU > lastL:
		result = strings.ToUpper(result)
	}

	// Same rule for length: the last directive wins.
	if match := lengthRegex.FindAllString(a.TransformSpec, -1); len(match) != 0 {
		l, _ := strconv.Atoi(match[len(match)-1])
		result = clip(result, l)
	}

	return result
}

// clip truncates s to l chars, or for negative l keeps both ends and joins
// them with "..".
func clip(s string, l int) string {
	abs := int(math.Abs(float64(l)))
	if abs == 0 || len(s) <= abs {
		return s
	}
	if l > 0 {
		return s[:l]
	}
	side := abs/2 - 1
	if side < 1 {
		return s[:abs]
	}
	return s[:side] + ".." + s[len(s)-side:]
}

// AttrList is the ordered set of columns of a command's output.
type AttrList []Attr

// Set parses a comma separated list of `key[:output[:transform]]` specs and
// merges them into the list. A leading ! keeps the attr for filtering and
// sorting but hides it. The key * carries a transform applied to every attr
// (see SetGlobalTransformSpec).
func (a *AttrList) Set(value string) error {
	if value == "" || value == "*" {
		return nil
	}

	const (
		keyIdx = iota
		outputIdx
		transformIdx
	)

specloop:
	for _, spec := range strings.Split(value, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		attr := Attr{Include: true}
		fields := strings.Split(spec, ":")

		attr.Key = strings.TrimSpace(fields[keyIdx])
		if strings.HasPrefix(attr.Key, "!") {
			attr.Include = false
			attr.Key = attr.Key[1:]
		}
		// Keys are relative to the row; a leading . is accepted for symmetry
		// with gjson paths.
		attr.Key = strings.TrimPrefix(attr.Key, ".")
		if attr.Key == "" {
			return fmt.Errorf("empty attribute key in %q", spec)
		}
		if attr.Key == "*" {
			attr.Include = false
		}

		// The output key defaults to the last segment of the key.
		segments := strings.Split(attr.Key, ".")
		attr.OutputKey = segments[len(segments)-1]
		if len(fields) > outputIdx && strings.TrimSpace(fields[outputIdx]) != "" {
			attr.OutputKey = strings.TrimSpace(fields[outputIdx])
		}

		if len(fields) > transformIdx {
			attr.TransformSpec = strings.TrimSpace(fields[transformIdx])
		}

		// Respecifying a default (by key or by output name) reshapes it in
		// place rather than adding a second column.
		for i := range *a {
			if (*a)[i].Key == attr.Key || (*a)[i].OutputKey == attr.Key {
				(*a)[i].Include = attr.Include
				(*a)[i].OutputKey = attr.OutputKey
				(*a)[i].TransformSpec = attr.TransformSpec
				log.Tracef("attr updated: key=%s", attr.Key)
				continue specloop
			}
		}

		*a = append(*a, attr)
		log.Tracef("attr added: key=%s output=%s transform=%s", attr.Key, attr.OutputKey, attr.TransformSpec)
	}

	return nil
}

// SetGlobalTransformSpec prepends the transform of the * attr, if any, to
// every attr's own spec.
func (a *AttrList) SetGlobalTransformSpec() {
	spec := ""
	for _, attr := range *a {
		if attr.Key == "*" {
			spec = attr.TransformSpec
			break
		}
	}
	if spec == "" {
		return
	}

	for i := range *a {
		(*a)[i].TransformSpec = spec + "," + (*a)[i].TransformSpec
	}
	log.Debugf("global transform applied: spec=%s", spec)
}

// Visible returns the attrs that are rendered.
func (a AttrList) Visible() AttrList {
	out := make(AttrList, 0, len(a))
	for _, attr := range a {
		if attr.Include {
			out = append(out, attr)
		}
	}
	return out
}

// Lookup returns the attr whose output key is name.
func (a AttrList) Lookup(name string) (Attr, bool) {
	for _, attr := range a {
		if attr.OutputKey == name {
			return attr, true
		}
	}
	return Attr{}, false
}

// String renders the list in the form Set accepts.
func (a *AttrList) String() string {
	out := make([]string, 0, len(*a))
	for _, attr := range *a {
		key := attr.Key
		if !attr.Include && key != "*" {
			key = "!" + key
		}
		out = append(out, fmt.Sprintf("%s:%s:%s", key, attr.OutputKey, attr.TransformSpec))
	}
	return strings.Join(out, ",")
}

// Type returns the flag type for use with the flag.Value interface.
func (a *AttrList) Type() string { return "list" }
