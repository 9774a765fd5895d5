// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/subfish/subfish/internal/attrs"
	awsx "github.com/subfish/subfish/internal/aws"
	"github.com/subfish/subfish/internal/backend"
	s3be "github.com/subfish/subfish/internal/backend/s3"
	"github.com/subfish/subfish/internal/cacheutil"
	"github.com/subfish/subfish/internal/environment"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/meta"
	"github.com/subfish/subfish/internal/output"
	"github.com/subfish/subfish/internal/render"
	"github.com/subfish/subfish/internal/resource"
	"github.com/subfish/subfish/internal/state"
)

// Cloud is the AWS side of a command: the service clients, the client backing
// the S3 state mirror and the resolved region.
type Cloud struct {
	Clients *awsx.Clients
	S3      s3be.API
	Region  string
}

// connect resolves the AWS config selected by --profile and --region.
var connect = func(ctx context.Context, cmd *cli.Command) (*Cloud, error) {
	var opts []awsx.Option
	if p := cmd.String("profile"); p != "" {
		opts = append(opts, awsx.WithProfile(p))
	}
	if r := cmd.String("region"); r != "" {
		opts = append(opts, awsx.WithRegion(r))
	}

	cfg, err := awsx.LoadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debugf("aws config: region=%s profile=%s", cfg.Region, cmd.String("profile"))

	return &Cloud{
		Clients: awsx.NewClients(cfg),
		S3:      awsx.NewS3(cfg),
		Region:  cfg.Region,
	}, nil
}

// newTiming paces the facades of a session.
var newTiming = resource.TimingFromConfig

// isTerminal reports whether stdin can answer a prompt.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Session is everything a lifecycle command works with.
type Session struct {
	Meta  meta.Meta
	Cloud *Cloud
	Store *state.Store
	Env   *environment.Environment
}

// openSession connects to AWS, opens the state document and builds an
// Environment over them rendering from the config dir.
func openSession(ctx context.Context, cmd *cli.Command) (*Session, error) {
	m := GetMeta(cmd)

	c, err := connect(ctx, cmd)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cmd, c)
	if err != nil {
		return nil, err
	}

	return &Session{
		Meta:  m,
		Cloud: c,
		Store: store,
		Env:   newEnvironment(store, c, m.ConfigDir),
	}, nil
}

func newEnvironment(store *state.Store, c *Cloud, configDir string) *environment.Environment {
	base := resource.NewBase(store, c.Clients, render.New(configDir, nil))
	base.Timing = newTiming()
	return environment.New(base)
}

// openStore opens the state document selected by --state and the S3 mirror
// flags. c may be nil for commands that only read state. Every save that
// changes the document snapshots the previous one to the cache.
func openStore(ctx context.Context, cmd *cli.Command, c *Cloud) (*state.Store, error) {
	spec := backend.Spec{
		Path:   cmd.String("state"),
		Bucket: cmd.String("s3-bucket"),
		Key:    cmd.String("s3-key"),

		Passphrase: cmd.String("passphrase"),
	}
	if c != nil {
		spec.Region = c.Region
		spec.S3Client = c.S3
	}

	be, err := backend.NewBackend(ctx, spec)
	if err != nil {
		return nil, err
	}

	return state.Open(ctx, be, state.WithSnapshot(func(prev []byte) error {
		return cacheutil.Snapshot(be.String(), prev)
	}))
}

// BuildAttrs constructs an AttrList with defaults and optional extras from
// --attrs, then applies the global transform spec.
func BuildAttrs(cmd *cli.Command, defaults ...string) (attrs.AttrList, error) {
	var al attrs.AttrList
	for _, d := range defaults {
		if err := al.Set(d); err != nil {
			return nil, err
		}
	}
	if extras := cmd.String("attrs"); extras != "" {
		if err := al.Set(extras); err != nil {
			return nil, fmt.Errorf("invalid --attrs: %w", err)
		}
	}
	al.SetGlobalTransformSpec()
	return al, nil
}

// DumpSchemaIfRequested writes the attribute names of t when --schema is set,
// and returns true if it handled the request.
func DumpSchemaIfRequested(cmd *cli.Command, t reflect.Type) bool {
	if cmd.Bool("schema") {
		output.DumpSchema(t, writer(cmd))
		return true
	}
	return false
}

// GetMeta returns the meta.Meta stored in the command's Metadata, looking up
// the command chain. If missing it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	for c := cmd; c != nil; c = c.Root() {
		if c.Metadata != nil {
			if m, ok := c.Metadata["meta"].(meta.Meta); ok {
				return m
			}
		}
		if c == c.Root() {
			break
		}
	}
	return meta.Meta{}
}

// writer is where a command's results go.
func writer(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}

// reader is where a command's prompts read answers from.
func reader(cmd *cli.Command) io.Reader {
	if root := cmd.Root(); root != nil && root.Reader != nil {
		return root.Reader
	}
	return os.Stdin
}
