// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/cacheutil"
	"github.com/subfish/subfish/internal/differ"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/meta"
	"github.com/subfish/subfish/internal/state"
	"github.com/subfish/subfish/internal/svutil"
)

// diffCommandAction compares the state document with what AWS reports now.
// With --previous or --against it compares stored versions instead, and
// nothing touches AWS. Nothing is saved.
func diffCommandAction(ctx context.Context, cmd *cli.Command) error {
	opts := differ.Options{
		Color:  cmd.Bool("color"),
		Ignore: cmd.StringSlice("ignore"),
	}

	specs := cmd.StringSlice("against")
	if len(specs) > 2 { //nolint:mnd
		return fmt.Errorf("--against takes at most two versions, got %d", len(specs))
	}
	if cmd.Bool("previous") && len(specs) == 0 {
		specs = []string{"~0"}
	}

	var before, after []byte
	var err error
	if len(specs) > 0 {
		before, after, err = storedVersions(ctx, cmd, specs)
	} else {
		before, after, err = cachedAndLive(ctx, cmd)
	}
	if err != nil {
		return err
	}

	changed, err := differ.Diff(writer(cmd), before, after, opts)
	if err != nil {
		return err
	}
	if changed && cmd.Bool("exit-code") {
		return cli.Exit("", 1)
	}
	return nil
}

// storedVersions resolves one or two version specs against the snapshots of
// the state document. One spec is compared with the document itself.
func storedVersions(ctx context.Context, cmd *cli.Command, specs []string) ([]byte, []byte, error) {
	store, err := openStore(ctx, cmd, nil)
	if err != nil {
		return nil, nil, err
	}

	snaps := cacheutil.Snapshots(store.String())
	if len(snaps) == 0 && len(specs) == 1 && specs[0] == "~0" {
		return nil, nil, fmt.Errorf("no previous version of %s", store)
	}

	versions, err := svutil.Resolve(snaps, specs...)
	if err != nil {
		return nil, nil, err
	}

	docs := make([][]byte, 0, len(versions)+1)
	for _, v := range versions {
		log.Debugf("state version: serial=%d path=%s modified=%s", v.Serial, v.Path, v.ModTime)
		parsed, err := state.Parse(v.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse state version %s: %w", v.Path, err)
		}
		doc, err := parsed.JSON()
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
	}

	if len(docs) == 1 {
		current, err := store.JSON()
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, current)
	}
	return docs[0], docs[1], nil
}

// cachedAndLive refreshes a detached copy of the state document and returns
// the document before and after.
func cachedAndLive(ctx context.Context, cmd *cli.Command) ([]byte, []byte, error) {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	live, err := s.Store.Clone()
	if err != nil {
		return nil, nil, err
	}
	if err := newEnvironment(live, s.Cloud, s.Meta.ConfigDir).Refresh(ctx); err != nil {
		return nil, nil, err
	}

	before, err := s.Store.JSON()
	if err != nil {
		return nil, nil, err
	}
	after, err := live.JSON()
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func diffCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "diff",
		Usage:     "show drift between the state document and AWS",
		UsageText: "subfish diff [ConfigDir] [options]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "against",
				Usage: "compare stored versions (~N, serial or file), at most two",
			},
			&cli.BoolFlag{
				Name:  "color",
				Usage: "color additions and removals",
			},
			&cli.BoolFlag{
				Name:  "exit-code",
				Usage: "exit 1 when there are differences",
			},
			&cli.StringSliceFlag{
				Name:  "ignore",
				Usage: "top-level state keys to leave out",
			},
			&cli.BoolFlag{
				Name:  "previous",
				Usage: "compare with the version the last save replaced",
			},
		},
		Action: diffCommandAction,
		Meta:   meta,
	}).Build()
}
