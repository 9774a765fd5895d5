// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package differ

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	before := `{"Vpc": {"VpcId": "vpc-1", "State": "pending"}, "Subnets": [{"SubnetId": "subnet-a"}]}`

	tests := []struct {
		name     string
		before   string
		after    string
		ignore   []string
		changed  bool
		contains []string
	}{
		{
			name:     "identical",
			before:   before,
			after:    before,
			contains: []string{Identical},
		},
		{
			name:     "value_changed",
			before:   before,
			after:    `{"Vpc": {"VpcId": "vpc-1", "State": "available"}, "Subnets": [{"SubnetId": "subnet-a"}]}`,
			changed:  true,
			contains: []string{`"State": "pending"`, `"State": "available"`},
		},
		{
			name:     "key_added",
			before:   before,
			after:    `{"Vpc": {"VpcId": "vpc-1", "State": "pending"}, "Subnets": [{"SubnetId": "subnet-a"}], "InternetGateway": {"InternetGatewayId": "igw-1"}}`,
			changed:  true,
			contains: []string{`igw-1`},
		},
		{
			name:     "from_nothing",
			before:   "",
			after:    before,
			changed:  true,
			contains: []string{`vpc-1`, `subnet-a`},
		},
		{
			name:     "ignored_key",
			before:   before,
			after:    `{"Vpc": {"VpcId": "vpc-1", "State": "available"}, "Subnets": [{"SubnetId": "subnet-a"}]}`,
			ignore:   []string{"Vpc"},
			contains: []string{Identical},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			changed, err := Diff(&buf, []byte(tt.before), []byte(tt.after), Options{Ignore: tt.ignore})
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			for _, c := range tt.contains {
				assert.Contains(t, buf.String(), c)
			}
		})
	}
}

func TestDiff_BadInput(t *testing.T) {
	_, err := Diff(&bytes.Buffer{}, []byte("{"), []byte("{}"), Options{})
	assert.ErrorContains(t, err, "previous state")

	_, err = Diff(&bytes.Buffer{}, []byte("{}"), []byte("["), Options{})
	assert.ErrorContains(t, err, "current state")
}
