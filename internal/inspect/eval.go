// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/tidwall/gjson"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	"github.com/subfish/subfish/internal/driller"
	"github.com/subfish/subfish/internal/state"
)

// Inspector answers queries about one state document.
type Inspector struct {
	raw  string
	keys []string
	vars map[string]cty.Value
}

// New builds an Inspector over the JSON form of a state document.
func New(doc []byte) (*Inspector, error) {
	if len(strings.TrimSpace(string(doc))) == 0 {
		doc = []byte("{}")
	}

	ty, err := ctyjson.ImpliedType(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to type state document: %w", err)
	}
	val, err := ctyjson.Unmarshal(doc, ty)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	if !val.Type().IsObjectType() {
		return nil, fmt.Errorf("state document is %s, not an object", val.Type().FriendlyName())
	}

	in := &Inspector{raw: string(doc), vars: map[string]cty.Value{"state": val}}
	for k, v := range val.AsValueMap() {
		in.vars[k] = v
		in.keys = append(in.keys, k)
	}
	slices.Sort(in.keys)
	return in, nil
}

// Keys returns the document's top-level keys in order.
func (in *Inspector) Keys() []string {
	return in.keys
}

// Eval answers one query.
func (in *Inspector) Eval(query string) (string, error) {
	query = strings.TrimSpace(query)

	switch {
	case query == "":
		return "", nil
	case query == "keys":
		return strings.Join(in.keys, "\n"), nil
	case query == ".":
		return in.raw, nil
	case strings.HasPrefix(query, "."):
		r, err := in.lookup(strings.TrimPrefix(query, "."))
		if err != nil {
			return "", err
		}
		return r.Raw, nil
	case strings.HasPrefix(query, "/"):
		return in.expression(strings.TrimPrefix(query, "/"))
	case hasBalancedParens(query):
		return in.expression(query)
	}

	r, err := in.lookup(query)
	if err != nil {
		return "", err
	}
	return Render(r, "yaml")
}

// lookup resolves a gjson path, then a drill path.
func (in *Inspector) lookup(path string) (gjson.Result, error) {
	r := gjson.Get(in.raw, path)
	if !r.Exists() {
		r = driller.Driller(in.raw, path)
	}
	if !r.Exists() {
		return r, fmt.Errorf("%s: %w", path, state.ErrNotFound)
	}
	return r, nil
}

func (in *Inspector) expression(src string) (string, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "query", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to parse expression: %s", diags.Error())
	}

	val, diags := expr.Value(&hcl.EvalContext{Variables: in.vars, Functions: functions})
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to evaluate expression: %s", diags.Error())
	}
	return formatValue(val)
}

// Render prints scalars bare and documents as yaml or json.
func Render(r gjson.Result, format string) (string, error) {
	if !r.IsObject() && !r.IsArray() {
		return r.String(), nil
	}
	if format == "json" {
		return r.Raw, nil
	}

	var v any
	if err := json.Unmarshal([]byte(r.Raw), &v); err != nil {
		return "", err
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(b), "\n"), nil
}

func formatValue(val cty.Value) (string, error) {
	if val.IsNull() {
		return "null", nil
	}
	if !val.IsWhollyKnown() {
		return "(unknown)", nil
	}

	switch val.Type() {
	case cty.Bool:
		return fmt.Sprintf("%t", val.True()), nil
	case cty.Number:
		return val.AsBigFloat().Text('f', -1), nil
	case cty.String:
		return val.AsString(), nil
	}

	b, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}

// hasBalancedParens reports whether s holds at least one matched pair of
// parentheses, which marks it as a function call.
func hasBalancedParens(s string) bool {
	open, closed := strings.Count(s, "("), strings.Count(s, ")")
	return open > 0 && open == closed
}

var functions = map[string]function.Function{
	"abs":    stdlib.AbsoluteFunc,
	"ceil":   stdlib.CeilFunc,
	"floor":  stdlib.FloorFunc,
	"max":    stdlib.MaxFunc,
	"min":    stdlib.MinFunc,
	"pow":    stdlib.PowFunc,
	"signum": stdlib.SignumFunc,

	"chomp":      stdlib.ChompFunc,
	"format":     stdlib.FormatFunc,
	"indent":     stdlib.IndentFunc,
	"join":       stdlib.JoinFunc,
	"lower":      stdlib.LowerFunc,
	"replace":    stdlib.ReplaceFunc,
	"split":      stdlib.SplitFunc,
	"substr":     stdlib.SubstrFunc,
	"title":      stdlib.TitleFunc,
	"trim":       stdlib.TrimFunc,
	"trimprefix": stdlib.TrimPrefixFunc,
	"trimspace":  stdlib.TrimSpaceFunc,
	"trimsuffix": stdlib.TrimSuffixFunc,
	"upper":      stdlib.UpperFunc,

	"coalesce":     stdlib.CoalesceFunc,
	"coalescelist": stdlib.CoalesceListFunc,
	"compact":      stdlib.CompactFunc,
	"concat":       stdlib.ConcatFunc,
	"contains":     stdlib.ContainsFunc,
	"distinct":     stdlib.DistinctFunc,
	"element":      stdlib.ElementFunc,
	"flatten":      stdlib.FlattenFunc,
	"index":        stdlib.IndexFunc,
	"keys":         stdlib.KeysFunc,
	"length":       stdlib.LengthFunc,
	"lookup":       stdlib.LookupFunc,
	"merge":        stdlib.MergeFunc,
	"reverse":      stdlib.ReverseListFunc,
	"slice":        stdlib.SliceFunc,
	"sort":         stdlib.SortFunc,
	"values":       stdlib.ValuesFunc,
	"zipmap":       stdlib.ZipmapFunc,

	"jsondecode": stdlib.JSONDecodeFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"formatdate": stdlib.FormatDateFunc,
	"formatlist": stdlib.FormatListFunc,
	"parseint":   stdlib.ParseIntFunc,
	"range":      stdlib.RangeFunc,
	"timeadd":    stdlib.TimeAddFunc,

	"regex":    stdlib.RegexFunc,
	"regexall": stdlib.RegexAllFunc,

	"try": tryfunc.TryFunc,
	"can": tryfunc.CanFunc,
}
