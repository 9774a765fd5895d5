// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/inspect"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/meta"
)

// runConsole drives the interactive inspector.
var runConsole = inspect.Run

// inspectCommandAction answers queries about the state document. Queries come
// from the arguments, from stdin when it is not a terminal, or from an
// interactive console.
func inspectCommandAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(ctx, cmd, nil)
	if err != nil {
		return err
	}
	raw, err := store.JSON()
	if err != nil {
		return err
	}
	in, err := inspect.New(raw)
	if err != nil {
		return err
	}

	w := writer(cmd)

	if cmd.Args().Present() {
		var errs []error
		for _, q := range cmd.Args().Slice() {
			out, err := in.Eval(q)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintln(w, out)
		}
		return errors.Join(errs...)
	}

	if !isTerminal() {
		var errs []error
		scanner := bufio.NewScanner(reader(cmd))
		for scanner.Scan() {
			out, err := in.Eval(scanner.Text())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if out != "" {
				fmt.Fprintln(w, out)
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	history := cmd.String("history")
	if history == "" {
		history = inspect.DefaultHistoryFile()
	}
	log.Debugf("inspect history: %s", history)

	banner := fmt.Sprintf("%d keys loaded from %s.", len(in.Keys()), store)
	return runConsole(ctx, in, banner, history, reader(cmd), w)
}

func inspectCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "inspect",
		Usage:     "query the state document with paths and HCL expressions",
		UsageText: "subfish inspect [query...] [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "history",
				Usage:   "console history file",
				Sources: cli.EnvVars("SUBFISH_INSPECT_HISTORY"),
			},
		},
		Action: inspectCommandAction,
		Meta:   meta,
	}).Build()
}
