// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/subfish/subfish/internal/attrs"
)

const inventory = `[
  {"kind": "vpc", "id": "vpc-1", "name": "lab", "state": "available", "detail": "10.0.0.0/16"},
  {"kind": "subnet", "id": "subnet-b", "name": "Lab-1", "state": "available", "group": "1", "detail": "10.0.1.0/24"},
  {"kind": "subnet", "id": "subnet-a", "name": "lab-0", "state": "pending", "group": "0", "detail": "10.0.0.0/24"}
]`

func attrList(t *testing.T, spec string) attrs.AttrList {
	t.Helper()
	al := attrs.AttrList{}
	require.NoError(t, al.Set(spec))
	al.SetGlobalTransformSpec()
	return al
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI drops the styling lipgloss renders into titles.
func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

func TestSortDataset(t *testing.T) {
	rows := func() []map[string]any {
		return []map[string]any{
			{"name": "beta", "n": 2.0, "group": "1"},
			{"name": "Alpha", "n": 10.0, "group": "0"},
			{"name": "gamma", "n": 2.0, "group": "0"},
		}
	}
	names := func(rs []map[string]any) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r["name"].(string))
		}
		return out
	}

	tests := []struct {
		name string
		spec string
		want []string
	}{
		{"no_spec_keeps_order", "", []string{"beta", "Alpha", "gamma"}},
		{"case_insensitive", "name", []string{"Alpha", "beta", "gamma"}},
		{"case_sensitive", "!name", []string{"Alpha", "beta", "gamma"}},
		{"descending", "-name", []string{"gamma", "beta", "Alpha"}},
		{"numeric_not_lexical", "n", []string{"beta", "gamma", "Alpha"}},
		{"numeric_descending", "-n", []string{"Alpha", "beta", "gamma"}},
		{"tie_broken_by_next_key", "n,-name", []string{"gamma", "beta", "Alpha"}},
		{"two_keys", "group,name", []string{"Alpha", "gamma", "beta"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := rows()
			SortDataset(rs, tt.spec)
			assert.Equal(t, tt.want, names(rs))
		})
	}
}

func TestInterfaceToString(t *testing.T) {
	tests := []struct {
		name  string
		value any
		empty []string
		want  string
	}{
		{"nil", nil, nil, ""},
		{"nil_custom_empty", nil, []string{"-"}, "-"},
		{"empty_string", "", []string{"-"}, "-"},
		{"string", "vpc-1", nil, "vpc-1"},
		{"int", 42, nil, "42"},
		{"whole_float", 3.0, nil, "3"},
		{"fraction", 0.5, nil, "0.5"},
		{"bool", true, nil, "true"},
		{"false_is_zero", false, []string{"-"}, "-"},
		{"list", []any{"a", "b"}, nil, `["a","b"]`},
		{"map", map[string]any{"k": "v"}, nil, `{"k":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterfaceToString(tt.value, tt.empty...))
		})
	}
}

func TestSchemaNames(t *testing.T) {
	type item struct {
		Kind    string    `json:"kind"`
		ID      string    `json:"id"`
		Name    string    `json:"name,omitempty"`
		Skipped string    `json:"-"`
		Plain   string
		Created time.Time `json:"created,omitzero"`
		hidden  string
	}
	_ = item{}.hidden

	assert.Equal(t, []string{"kind", "id", "name", "Plain", "created"}, schemaNames(reflect.TypeOf(item{})))
	assert.Equal(t, []string{"kind", "id", "name", "Plain", "created"}, schemaNames(reflect.TypeOf([]*item{})))
	assert.Nil(t, schemaNames(reflect.TypeOf("")))

	var buf bytes.Buffer
	DumpSchema(reflect.TypeOf(item{}), &buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"Plain", "created", "id", "kind", "name"}, lines[2:])
}

func TestGetColors(t *testing.T) {
	header, even, odd := getColors("colors")
	assert.NotNil(t, header)
	assert.NotNil(t, even)
	assert.NotNil(t, odd)
}

func TestTableWriter(t *testing.T) {
	rows := []map[string]any{
		{"kind": "vpc", "id": "vpc-1", "group": nil, "hidden": "secret"},
		{"kind": "subnet", "id": "subnet-a", "group": "0", "hidden": "secret"},
	}
	al := attrList(t, "kind,id,group,!hidden")

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		TableWriter(nil, al, Options{Titles: true, Header: "h"}, &buf)
		assert.Empty(t, buf.String())
	})

	t.Run("titles_header_footer", func(t *testing.T) {
		var buf bytes.Buffer
		TableWriter(rows, al, Options{Titles: true, Header: "account 123", Footer: "2 resources"}, &buf)
		out := stripANSI(buf.String())

		lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
		assert.Equal(t, "account 123", strings.TrimSpace(lines[0]))
		assert.Equal(t, "2 resources", strings.TrimSpace(lines[len(lines)-1]))
		assert.Regexp(t, `kind\s+id\s+group`, out)
		assert.Regexp(t, `vpc\s+vpc-1\s+-`, out)
		assert.Regexp(t, `subnet\s+subnet-a\s+0`, out)
		assert.NotContains(t, out, "secret")
		assert.NotContains(t, out, "hidden")
	})

	t.Run("no_titles", func(t *testing.T) {
		var buf bytes.Buffer
		TableWriter(rows, al, Options{}, &buf)
		assert.NotContains(t, buf.String(), "kind")
		assert.Contains(t, buf.String(), "subnet-a")
	})
}

func TestSliceDiceSpit(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		al := attrList(t, "kind,id,!state")
		require.NoError(t, SliceDiceSpit([]byte(inventory), al, Options{Format: "json", Filter: "kind=subnet", Sort: "id"}, &buf, nil))

		var got []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, []map[string]any{
			{"kind": "subnet", "id": "subnet-a"},
			{"kind": "subnet", "id": "subnet-b"},
		}, got)
	})

	t.Run("yaml_with_transforms", func(t *testing.T) {
		var buf bytes.Buffer
		al := attrList(t, "id:ID:u,detail:cidr")
		require.NoError(t, SliceDiceSpit([]byte(inventory), al, Options{Format: "yaml", Filter: "state=pending"}, &buf, nil))

		var got []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, []map[string]any{{"ID": "SUBNET-A", "cidr": "10.0.0.0/24"}}, got)
	})

	t.Run("raw", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, SliceDiceSpit([]byte("Vpc: {}\n"), attrList(t, "kind"), Options{Format: "raw", Filter: "kind=x"}, &buf, nil))
		assert.Equal(t, "Vpc: {}\n", buf.String())
	})

	t.Run("text_post_process", func(t *testing.T) {
		var buf bytes.Buffer
		seen := 0
		post := func(rows []map[string]any) error {
			seen = len(rows)
			for _, r := range rows {
				r["name"] = "<" + r["name"].(string) + ">"
			}
			return nil
		}
		require.NoError(t, SliceDiceSpit([]byte(inventory), attrList(t, "name"), Options{Format: "text", Sort: "-name"}, &buf, post))
		assert.Equal(t, 3, seen)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "<Lab-1>", strings.TrimSpace(lines[0]))
		assert.Equal(t, "<lab>", strings.TrimSpace(lines[2]))
	})

	t.Run("post_process_error", func(t *testing.T) {
		boom := errors.New("boom")
		err := SliceDiceSpit([]byte(inventory), attrList(t, "name"), Options{}, &bytes.Buffer{}, func([]map[string]any) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func BenchmarkSortDataset(b *testing.B) {
	rows := make([]map[string]any, 0, 500)
	for i := 0; i < 500; i++ {
		rows = append(rows, map[string]any{"id": strings.Repeat("x", i%17), "n": float64(i % 13)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SortDataset(rows, "n,-id")
	}
}
