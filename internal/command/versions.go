// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/cacheutil"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/meta"
	"github.com/subfish/subfish/internal/output"
	"github.com/subfish/subfish/internal/state"
)

// Version is one stored previous version of the state document.
type Version struct {
	Serial int       `json:"serial"`
	Saved  time.Time `json:"saved"`
	Size   string    `json:"size"`
	Keys   int       `json:"keys"`
	Path   string    `json:"path"`
}

var versionsDefaultAttrs = []string{"serial,saved:age:T,size,keys"}

// versionsCommandAction lists the snapshots kept of the state document, newest
// first. Their serials and ~N positions are what diff --against takes.
func versionsCommandAction(ctx context.Context, cmd *cli.Command) error {
	if DumpSchemaIfRequested(cmd, reflect.TypeOf(Version{})) {
		return nil
	}

	store, err := openStore(ctx, cmd, nil)
	if err != nil {
		return err
	}

	al, err := BuildAttrs(cmd, versionsDefaultAttrs...)
	if err != nil {
		return err
	}

	snaps := cacheutil.Snapshots(store.String())
	if limit := int(cmd.Int("limit")); limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}

	versions := make([]Version, 0, len(snaps))
	for _, s := range snaps {
		v := Version{
			Serial: s.Serial,
			Saved:  s.ModTime.UTC(),
			Size:   humanize.Bytes(uint64(len(s.Data))),
			Path:   s.Path,
		}
		if parsed, err := state.Parse(s.Data); err == nil {
			v.Keys = len(parsed.Keys())
		} else {
			log.Debugf("unreadable snapshot %s: %v", s.Path, err)
		}
		versions = append(versions, v)
	}

	raw, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("failed to marshal versions: %w", err)
	}

	opts := output.OptionsFromCommand(cmd)
	if opts.Titles {
		opts.Header = "state " + store.String()
		opts.Footer = fmt.Sprintf("%d versions", len(versions))
	}
	return output.SliceDiceSpit(raw, al, opts, writer(cmd), nil)
}

func versionsCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "versions",
		Usage:     "list stored versions of the state document",
		UsageText: "subfish versions [options]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "limit versions returned",
			},
		},
		Output: true,
		Action: versionsCommandAction,
		Meta:   meta,
	}).Build()
}
