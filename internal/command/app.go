// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/meta"
	"github.com/subfish/subfish/internal/util"
)

// ConfigDirCommands take an optional `ConfigDir[::blueprint]` right after the
// command name.
var ConfigDirCommands = []string{"up", "down", "refresh", "status", "diff"}

func InitApp(ctx context.Context, args []string) (*cli.Command, error) {
	sd, _ := os.Getwd()

	// The arg[1] immediately following the binary (arg[0]) is the subfish
	// subcommand and also represents the namespace key to be used when
	// retrieving config values. arg[1] could be -h/--help, so ignore it if it
	// appears to be a flag.
	var ns string
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		ns = args[1]
	}

	// A missing config file is the common case.
	cfg, _ := config.Load(ns) //nolint
	meta := meta.Meta{
		Args:        args,
		Config:      cfg,
		Context:     ctx,
		StartingDir: sd,
	}
	meta.ConfigDir = sd

	// See if the arg immediately following the command is a config dir spec.
	// If it begins with - it's a flag and the CWD is the config dir.
	if slices.Contains(ConfigDirCommands, ns) && len(args) > 2 && !strings.HasPrefix(args[2], "-") {
		dir, blueprint, err := util.ParseConfigDir(args[2])
		if err != nil {
			return nil, fmt.Errorf("failed to parse config dir (%s): %w", args[2], err)
		}
		meta.ConfigDir = dir
		meta.Blueprint = blueprint
	}

	app := &cli.Command{
		Name:  "subfish",
		Usage: "build and tear down AWS VPC topologies",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "version",
				Aliases:     []string{"v"},
				Usage:       "subfish version info",
				HideDefault: true,
			},
		},
		Metadata: map[string]any{
			"meta": meta,
		},
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		// main turns errors into exit codes.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}

	app.Commands = append(app.Commands,
		upCommandBuilder(meta),
		downCommandBuilder(meta),
		refreshCommandBuilder(meta),
		statusCommandBuilder(meta),
		showCommandBuilder(meta),
		inspectCommandBuilder(meta),
		diffCommandBuilder(meta),
		versionsCommandBuilder(meta),
		whoamiCommandBuilder(meta),
		completionCommandBuilder(meta),
	)

	// Make sure flags are sorted for the --help text.
	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}

	return app, nil
}
