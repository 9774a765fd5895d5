// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/driller"
	"github.com/subfish/subfish/internal/inspect"
	"github.com/subfish/subfish/internal/meta"
	"github.com/subfish/subfish/internal/state"
)

// showCommandAction prints the state document, or the part of it a path
// selects. Paths are gjson paths ("Subnets.#.SubnetId") or drill paths
// ("Subnets[1].Tags{Name}").
func showCommandAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(ctx, cmd, nil)
	if err != nil {
		return err
	}

	w := writer(cmd)
	path := cmd.Args().First()
	if path == "" {
		raw, err := store.YAML()
		if err != nil {
			return err
		}
		_, err = w.Write(raw)
		return err
	}

	r := store.Lookup(path)
	if !r.Exists() {
		raw, err := store.JSON()
		if err != nil {
			return err
		}
		r = driller.Driller(string(raw), path)
	}
	if !r.Exists() {
		return fmt.Errorf("%s: %w", path, state.ErrNotFound)
	}

	out, err := inspect.Render(r, cmd.String("output"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func showCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "show",
		Usage:     "print the state document or part of it",
		UsageText: "subfish show [path] [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "document format (yaml, json)",
				Value:   "yaml",
				Validator: func(value string) error {
					return FlagValidators(value, OneOf("yaml", "json"))
				},
			},
		},
		Action: showCommandAction,
		Meta:   meta,
	}).Build()
}
