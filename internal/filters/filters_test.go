// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/subfish/subfish/internal/attrs"
)

const rows = `[
  {"kind": "vpc", "id": "vpc-1", "name": "lab", "state": "available", "detail": "10.0.0.0/16"},
  {"kind": "subnet", "id": "subnet-a", "name": "lab-0", "state": "available", "group": "0", "detail": "10.0.0.0/24", "count": 3},
  {"kind": "subnet", "id": "subnet-b", "name": "lab-1", "state": "pending", "group": "1", "detail": "10.0.1.0/24", "count": 12},
  {"kind": "security-group", "id": "sg-1", "name": "bastion", "ports": [22, 443], "labels": {"env": "dev"}}
]`

func TestBuildFilters(t *testing.T) {
	tests := []struct {
		name  string
		spec  string
		delim string
		want  []Filter
	}{
		{name: "empty", spec: ""},
		{name: "equals", spec: "kind=subnet", want: []Filter{{Key: "kind", Operand: "=", Value: "subnet"}}},
		{name: "negated", spec: "state!=available", want: []Filter{{Key: "state", Negate: true, Operand: "=", Value: "available"}}},
		{name: "empty_value", spec: "group=", want: []Filter{{Key: "group", Operand: "=", Value: ""}}},
		{
			name: "several",
			spec: "kind^sub, id@-a ,name/^lab-[0-9]$",
			want: []Filter{
				{Key: "kind", Operand: "^", Value: "sub"},
				{Key: "id", Operand: "@", Value: "-a"},
				{Key: "name", Operand: "/", Value: "^lab-[0-9]$"},
			},
		},
		{name: "missing_key_skipped", spec: "=x,kind=vpc", want: []Filter{{Key: "kind", Operand: "=", Value: "vpc"}}},
		{name: "missing_operand_skipped", spec: "kind", want: nil},
		{
			name:  "custom_delimiter",
			spec:  "detail=10.0.0.0/24,10.0.1.0/24;kind=subnet",
			delim: ";",
			want: []Filter{
				{Key: "detail", Operand: "=", Value: "10.0.0.0/24,10.0.1.0/24"},
				{Key: "kind", Operand: "=", Value: "subnet"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.delim != "" {
				t.Setenv("SUBFISH_FILTER_DELIM", tt.delim)
			}
			assert.Equal(t, tt.want, BuildFilters(tt.spec))
		})
	}
}

func TestCheckStringOperand(t *testing.T) {
	tests := []struct {
		value string
		f     Filter
		want  bool
	}{
		{"subnet", Filter{Operand: "=", Value: "subnet"}, true},
		{"subnet", Filter{Operand: "=", Value: "subnet", Negate: true}, false},
		{"Subnet", Filter{Operand: "~", Value: "SUBNET"}, true},
		{"subnet-a", Filter{Operand: "^", Value: "subnet-"}, true},
		{"b", Filter{Operand: ">", Value: "a"}, true},
		{"b", Filter{Operand: "<", Value: "a"}, false},
		{"lab-0", Filter{Operand: "@", Value: "b-"}, true},
		{"lab-0", Filter{Operand: "/", Value: `^lab-\d$`}, true},
		{"lab-0", Filter{Operand: "/", Value: `[`}, false},
		{"lab-0", Filter{Operand: "?", Value: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.value+tt.f.Operand+tt.f.Value, func(t *testing.T) {
			assert.Equal(t, tt.want, checkStringOperand(tt.value, tt.f))
		})
	}
}

func TestCheckNumericOperand(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		f     Filter
		want  bool
	}{
		{"equal", 3, Filter{Operand: "=", Value: "3"}, true},
		{"not_equal", 3, Filter{Operand: "=", Value: "3", Negate: true}, false},
		{"greater", 12, Filter{Operand: ">", Value: "3"}, true},
		{"numeric_not_lexical", 12, Filter{Operand: "<", Value: "3"}, false},
		{"less", 2, Filter{Operand: "<", Value: "3"}, true},
		{"non_numeric_target", 12, Filter{Operand: "^", Value: "1"}, true},
		{"contains_digits", 123, Filter{Operand: "@", Value: "23"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkNumericOperand(tt.value, tt.f))
		})
	}
}

func TestCheckContainsOperand(t *testing.T) {
	list := []any{22.0, 443.0}
	labels := map[string]any{"env": "dev"}

	assert.True(t, checkContainsOperand(list, Filter{Operand: "@", Value: "22"}))
	assert.False(t, checkContainsOperand(list, Filter{Operand: "@", Value: "80"}))
	assert.True(t, checkContainsOperand(list, Filter{Operand: "@", Value: "80", Negate: true}))
	assert.True(t, checkContainsOperand(labels, Filter{Operand: "@", Value: "env"}))
	assert.False(t, checkContainsOperand(labels, Filter{Operand: "@", Value: "env", Negate: true}))
	assert.False(t, checkContainsOperand(list, Filter{Operand: "=", Value: "22"}))
}

func TestFilterDataset(t *testing.T) {
	al := attrs.AttrList{}
	require.NoError(t, al.Set("kind,id,detail:cidr,!group"))

	tests := []struct {
		name    string
		spec    string
		wantIDs []string
	}{
		{name: "no_filter", spec: "", wantIDs: []string{"vpc-1", "subnet-a", "subnet-b", "sg-1"}},
		{name: "by_kind", spec: "kind=subnet", wantIDs: []string{"subnet-a", "subnet-b"}},
		{name: "by_output_key", spec: "cidr^10.0.1.", wantIDs: []string{"subnet-b"}},
		{name: "hidden_attr", spec: "group=1", wantIDs: []string{"subnet-b"}},
		{name: "undisplayed_key", spec: "state!=available", wantIDs: []string{"sg-1", "subnet-b"}},
		{name: "missing_value_fails_match", spec: "group=0", wantIDs: []string{"subnet-a"}},
		{name: "numeric", spec: "count>5", wantIDs: []string{"subnet-b"}},
		{name: "list_contains", spec: "ports@443", wantIDs: []string{"sg-1"}},
		{name: "all_must_match", spec: "kind=subnet,state=available", wantIDs: []string{"subnet-a"}},
		{name: "none", spec: "kind=cluster", wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterDataset(gjson.Parse(rows), al, tt.spec)

			var ids []string
			for _, row := range got {
				ids = append(ids, row["id"].(string))
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestFilterDataset_Projects(t *testing.T) {
	al := attrs.AttrList{}
	require.NoError(t, al.Set("id,detail:cidr,!group,*::u"))

	got := FilterDataset(gjson.Parse(rows), al, "id=subnet-a")
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"id": "subnet-a", "cidr": "10.0.0.0/24", "group": "0"}, got[0])
}
