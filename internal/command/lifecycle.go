// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/environment"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/meta"
)

// ErrAborted is returned when the user declines a confirmation.
var ErrAborted = errors.New("aborted")

// upCommandAction builds the topology the blueprint describes, skipping
// whatever the state document already holds.
func upCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)

	path := environment.BlueprintPath(m.ConfigDir, m.Blueprint)
	bp, err := environment.LoadBlueprint(path)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	log.Infof("up: blueprint=%s state=%s region=%s", path, s.Store, s.Cloud.Region)

	if err := s.Env.Up(ctx, bp); err != nil {
		return err
	}

	fmt.Fprintf(writer(cmd), "%d resources cached in %s\n", len(environment.Inventory(s.Store)), s.Store)
	return nil
}

// downCommandAction deletes everything the state document holds.
func downCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}

	items := environment.Inventory(s.Store)
	if len(items) == 0 {
		fmt.Fprintf(writer(cmd), "Nothing cached in %s.\n", s.Store)
		return nil
	}

	if !cmd.Bool("yes") {
		prompt := fmt.Sprintf("Delete %d resources cached in %s?", len(items), s.Store)
		ok, err := confirm(cmd, prompt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAborted
		}
	}

	if err := s.Env.Down(ctx); err != nil {
		return err
	}

	fmt.Fprintf(writer(cmd), "%d resources deleted\n", len(items))
	return nil
}

// refreshCommandAction re-reads every cached resource from AWS.
func refreshCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}

	before := len(environment.Inventory(s.Store))
	if err := s.Env.Refresh(ctx); err != nil {
		return err
	}
	after := len(environment.Inventory(s.Store))

	fmt.Fprintf(writer(cmd), "%d resources cached in %s", after, s.Store)
	if gone := before - after; gone > 0 {
		fmt.Fprintf(writer(cmd), " (%d gone)", gone)
	}
	fmt.Fprintln(writer(cmd))
	return nil
}

// confirm asks a yes/no question on the terminal. Anything but y or yes is a
// no. Without a terminal it refuses rather than guess.
func confirm(cmd *cli.Command, prompt string) (bool, error) {
	if !isTerminal() {
		return false, errors.New("not a terminal, use --yes to confirm")
	}

	fmt.Fprintf(writer(cmd), "%s [y/N] ", prompt)
	answer, err := bufio.NewReader(reader(cmd)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func upCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "up",
		Usage:     "create the topology of a blueprint",
		UsageText: "subfish up [ConfigDir[::blueprint]] [options]",
		Action:    upCommandAction,
		Meta:      meta,
	}).Build()
}

func downCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "down",
		Usage:     "delete every cached resource",
		UsageText: "subfish down [ConfigDir] [options]",
		Flags:     []cli.Flag{newYesFlag()},
		Action:    downCommandAction,
		Meta:      meta,
	}).Build()
}

func refreshCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "refresh",
		Usage:     "re-read cached resources from AWS",
		UsageText: "subfish refresh [ConfigDir] [options]",
		Action:    refreshCommandAction,
		Meta:      meta,
	}).Build()
}
