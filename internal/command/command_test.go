// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/aws/awsfake"
	"github.com/subfish/subfish/internal/backend"
	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/inspect"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/resource/resourcetest"
	"github.com/subfish/subfish/internal/state"
)

// harness runs the app against the AWS fakes with the state document and
// config dir in temp dirs.
type harness struct {
	cloud     *awsfake.Cloud
	configDir string
	statePath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	t.Setenv("SUBFISH_CACHE_DIR", t.TempDir())
	cfg := filepath.Join(t.TempDir(), "subfish.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("status:\n  padding: 3\n"), 0o600))
	t.Setenv("SUBFISH_CFG_FILE", cfg)
	config.Config = config.Type{}

	h := &harness{
		cloud:     awsfake.New(),
		configDir: t.TempDir(),
		statePath: filepath.Join(t.TempDir(), ".aws_dict.yml"),
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.configDir, render.BlueprintFileName),
		[]byte("groups: 1\nsubnets_per_group: 2\n"), 0o600))

	origConnect, origTiming, origTerminal := connect, newTiming, isTerminal
	t.Cleanup(func() {
		connect, newTiming, isTerminal = origConnect, origTiming, origTerminal
		config.Config = config.Type{}
	})
	connect = func(context.Context, *cli.Command) (*Cloud, error) {
		return &Cloud{Clients: h.cloud.Clients(), Region: "us-east-1"}, nil
	}
	newTiming = func() resource.Timing { return resourcetest.FastTiming }
	isTerminal = func() bool { return false }

	return h
}

// run executes `subfish args... --state <statePath>` with stdin as input.
func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	full := append([]string{"subfish"}, args...)
	if len(args) > 0 && args[0] != "completion" {
		full = append(full, "--state", h.statePath)
	}

	app, err := InitApp(context.Background(), full)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)

	err = app.Run(context.Background(), full)
	return out.String(), err
}

// inventory runs status as json and returns the rows.
func (h *harness) inventory(t *testing.T, extra ...string) []map[string]any {
	t.Helper()
	out, err := h.run(t, "", append([]string{"status", "-o", "json"}, extra...)...)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	return rows
}

func kinds(rows []map[string]any) map[string]int {
	out := map[string]int{}
	for _, r := range rows {
		out[r["kind"].(string)]++
	}
	return out
}

func TestUpStatusDown(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "up", h.configDir)
	require.NoError(t, err)
	assert.Contains(t, out, "resources cached in "+h.statePath)
	assert.Equal(t, 1, h.cloud.EC2.Calls("CreateVpc"))

	got := kinds(h.inventory(t))
	assert.Equal(t, 1, got["vpc"])
	assert.Equal(t, 2, got["subnet"])
	assert.Equal(t, 1, got["internet-gateway"])

	// Up again creates nothing.
	_, err = h.run(t, "", "up", h.configDir)
	require.NoError(t, err)
	assert.Equal(t, 1, h.cloud.EC2.Calls("CreateVpc"))
	assert.Equal(t, 2, h.cloud.EC2.Calls("CreateSubnet"))

	subnets := h.inventory(t, "--filter", "kind=subnet", "--attrs", "!created")
	require.Len(t, subnets, 2)
	for _, s := range subnets {
		assert.Equal(t, "0", s["group"])
		assert.NotContains(t, s, "age")
	}

	_, err = h.run(t, "", "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	isTerminal = func() bool { return true }
	out, err = h.run(t, "n\n", "down")
	assert.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, out, "[y/N]")
	assert.NotEmpty(t, h.inventory(t))

	out, err = h.run(t, "y\n", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "resources deleted")
	assert.Empty(t, h.inventory(t))
	assert.Equal(t, 1, h.cloud.EC2.Calls("DeleteVpc"))

	out, err = h.run(t, "", "down", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing cached")
}

func TestUp_NamedBlueprint(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.configDir, "small.yaml"), []byte("subnets_per_group: 1\n"), 0o600))

	_, err := h.run(t, "", "up", h.configDir+"::small")
	require.NoError(t, err)
	assert.Equal(t, 1, kinds(h.inventory(t))["subnet"])
}

func TestUp_BadBlueprint(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.configDir, render.BlueprintFileName), []byte("bogus: true\n"), 0o600))

	_, err := h.run(t, "", "up", h.configDir)
	require.Error(t, err)
	assert.Zero(t, h.cloud.EC2.Calls("CreateVpc"))
}

func TestInitApp_ConfigDir(t *testing.T) {
	dir := t.TempDir()

	app, err := InitApp(context.Background(), []string{"subfish", "up", dir + "::prod"})
	require.NoError(t, err)
	m := GetMeta(app)
	assert.Equal(t, "prod", m.Blueprint)
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(m.ConfigDir)
	assert.Equal(t, wantDir, gotDir)

	_, err = InitApp(context.Background(), []string{"subfish", "status", filepath.Join(dir, "missing")})
	require.Error(t, err)

	// show takes a path, not a config dir.
	app, err = InitApp(context.Background(), []string{"subfish", "show", "Vpc.VpcId"})
	require.NoError(t, err)
	cwd, _ := os.Getwd()
	assert.Equal(t, cwd, GetMeta(app).ConfigDir)

	names := []string{}
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"up", "down", "refresh", "status", "show", "inspect", "diff", "versions", "whoami", "completion"}, names)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, h.inventory(t))
	})

	_, err := h.run(t, "", "up", h.configDir)
	require.NoError(t, err)

	t.Run("titles", func(t *testing.T) {
		out, err := h.run(t, "", "status", "--titles")
		require.NoError(t, err)
		assert.Contains(t, out, "account "+awsfake.Account+"  region us-east-1")
		assert.Contains(t, out, "age")
		assert.Regexp(t, `\d+ resources`, out)
	})

	t.Run("schema", func(t *testing.T) {
		out, err := h.run(t, "", "status", "--schema")
		require.NoError(t, err)
		for _, name := range []string{"kind", "id", "name", "state", "group", "detail", "created"} {
			assert.Contains(t, out, name)
		}
	})

	t.Run("raw", func(t *testing.T) {
		out, err := h.run(t, "", "status", "-o", "raw")
		require.NoError(t, err)
		assert.Contains(t, out, state.KeyVpc+":")
	})

	t.Run("sorted_yaml", func(t *testing.T) {
		out, err := h.run(t, "", "status", "-o", "yaml", "--filter", "kind=subnet", "--sort", "-detail", "--attrs", "!created")
		require.NoError(t, err)
		first := strings.Index(out, "10.0.1.")
		second := strings.Index(out, "10.0.0.")
		require.GreaterOrEqual(t, first, 0, out)
		require.GreaterOrEqual(t, second, 0, out)
		assert.Less(t, first, second)
	})

	t.Run("bad_output", func(t *testing.T) {
		_, err := h.run(t, "", "status", "-o", "xml")
		require.Error(t, err)
	})

	t.Run("bad_attrs", func(t *testing.T) {
		_, err := h.run(t, "", "status", "--attrs", ":x")
		require.Error(t, err)
	})
}

func TestShow(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "up", h.configDir)
	require.NoError(t, err)

	out, err := h.run(t, "", "show", "Vpc.VpcId")
	require.NoError(t, err)
	assert.Regexp(t, `^vpc-\S+\n$`, out)

	out, err = h.run(t, "", "show", "Subnets.#")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	// Drill paths fall back when gjson finds nothing.
	out, err = h.run(t, "", "show", "Subnets[1].SubnetId")
	require.NoError(t, err)
	assert.Regexp(t, `^subnet-\S+\n$`, out)

	out, err = h.run(t, "", "show", "Vpc", "-o", "json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), out)

	out, err = h.run(t, "", "show", "Vpc")
	require.NoError(t, err)
	assert.Contains(t, out, "VpcId: vpc-")

	out, err = h.run(t, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, state.KeySubnets+":")

	_, err = h.run(t, "", "show", "Cluster.Name")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestInspect(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "up", h.configDir)
	require.NoError(t, err)

	t.Run("args", func(t *testing.T) {
		out, err := h.run(t, "", "inspect", "Vpc.VpcId", "/length(Subnets)", "/upper(Vpc.State)")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.Regexp(t, `^vpc-\S+$`, lines[0])
		assert.Equal(t, "2", lines[1])
		assert.Equal(t, "AVAILABLE", lines[2])
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := h.run(t, "Subnets.#\n\nkeys\n", "inspect")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "2\n"), out)
		assert.Contains(t, out, state.KeyVpc+"\n")
	})

	t.Run("errors_joined", func(t *testing.T) {
		out, err := h.run(t, "", "inspect", "Cluster.Name", "Vpc.VpcId", "/nope(")
		assert.ErrorIs(t, err, state.ErrNotFound)
		assert.ErrorContains(t, err, "failed to parse expression")
		assert.Regexp(t, `^vpc-\S+\n$`, out)
	})

	t.Run("console", func(t *testing.T) {
		orig := runConsole
		t.Cleanup(func() { runConsole = orig })
		isTerminal = func() bool { return true }
		t.Cleanup(func() { isTerminal = func() bool { return false } })

		var gotBanner, gotHistory string
		var gotKeys []string
		runConsole = func(_ context.Context, in *inspect.Inspector, banner, history string, _ io.Reader, _ io.Writer) error {
			gotBanner, gotHistory, gotKeys = banner, history, in.Keys()
			return nil
		}

		history := filepath.Join(t.TempDir(), "history")
		_, err := h.run(t, "", "inspect", "--history", history)
		require.NoError(t, err)
		assert.Equal(t, history, gotHistory)
		assert.Contains(t, gotBanner, "keys loaded from "+h.statePath)
		assert.Contains(t, gotKeys, state.KeySubnets)
	})
}

func TestDiff(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "diff", "--previous")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no previous version")

	_, err = h.run(t, "", "up", h.configDir)
	require.NoError(t, err)
	_, err = h.run(t, "", "refresh")
	require.NoError(t, err)

	out, err := h.run(t, "", "diff", "--exit-code")
	require.NoError(t, err)
	assert.Contains(t, out, "The states are identical.")

	// Tamper with the cached VPC; refreshing puts AWS's view back.
	be, err := backend.NewBackend(context.Background(), backend.Spec{Path: h.statePath})
	require.NoError(t, err)
	store, err := state.Open(context.Background(), be)
	require.NoError(t, err)
	var vpc map[string]any
	require.NoError(t, store.Get(state.KeyVpc, &vpc))
	vpc["CidrBlock"] = "10.9.0.0/16"
	require.NoError(t, store.Set(state.KeyVpc, vpc))
	require.NoError(t, store.Save(context.Background()))

	out, err = h.run(t, "", "diff", "--exit-code")
	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit), "err=%v", err)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, out, "10.9.0.0/16")

	// Nothing was saved.
	assert.Equal(t, "10.9.0.0/16", h.show(t, "Vpc.CidrBlock"))

	out, err = h.run(t, "", "diff", "--ignore", state.KeyVpc)
	require.NoError(t, err)
	assert.Contains(t, out, "The states are identical.")

	out, err = h.run(t, "", "diff", "--previous")
	require.NoError(t, err)
	assert.Contains(t, out, "10.9.0.0/16")

	// Every save up made kept the version it replaced.
	out, err = h.run(t, "", "versions", "-o", "json", "--attrs", "path")
	require.NoError(t, err)
	var versions []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	require.NotEmpty(t, versions)
	newest := versions[0]["serial"].(float64)
	for _, v := range versions[1:] {
		assert.Less(t, v["serial"].(float64), newest)
	}
	assert.NotEmpty(t, versions[0]["path"])

	out, err = h.run(t, "", "versions", "-o", "json", "--limit", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	assert.Len(t, versions, 1)

	out, err = h.run(t, "", "diff", "--against", "~0", "--against", "~0")
	require.NoError(t, err)
	assert.Contains(t, out, "The states are identical.")

	out, err = h.run(t, "", "diff", "--against", strconv.Itoa(int(newest)))
	require.NoError(t, err)
	assert.Contains(t, out, "10.9.0.0/16")

	_, err = h.run(t, "", "diff", "--against", "~99")
	assert.ErrorContains(t, err, "out of range")

	_, err = h.run(t, "", "diff", "--against", "~0", "--against", "~1", "--against", "1")
	assert.ErrorContains(t, err, "at most two")
}

func (h *harness) show(t *testing.T, path string) string {
	t.Helper()
	out, err := h.run(t, "", "show", path)
	require.NoError(t, err)
	return strings.TrimSpace(out)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "up", h.configDir)
	require.NoError(t, err)

	out, err := h.run(t, "", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "resources cached in")
	assert.NotContains(t, out, "gone")
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Account: "+awsfake.Account)
	assert.Contains(t, out, "Region:  us-east-1")

	h.cloud.STS.FailNext("GetCallerIdentity", assert.AnError)
	_, err = h.run(t, "", "whoami")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCompletion(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "complete -F _subfish subfish")

	out, err = h.run(t, "", "completion", "zsh")
	require.NoError(t, err)
	assert.Contains(t, out, "#compdef subfish")
}

func TestOutputValidator(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml", "raw"} {
		assert.NoError(t, OutputValidator(f))
	}
	assert.Error(t, OutputValidator("xml"))
	assert.Error(t, OutputValidator(42))
}

func TestNameSpacedValueChainFromConfigFile(t *testing.T) {
	flag := &cli.StringFlag{Name: "region"}
	NameSpacedValueChainFlagFromConfigFile("up", "", flag)
	assert.Empty(t, flag.Sources.Chain)

	NameSpacedValueChainFlagFromConfigFile("up", "/tmp/subfish.yaml", flag)
	assert.Len(t, flag.Sources.Chain, 2)
}
