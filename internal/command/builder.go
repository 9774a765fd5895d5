// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/meta"
)

// CommandBuilder constructs a subcommand with a consistent pattern. Every
// command gets the AWS and state flags; Output commands also get --schema and
// the flags shaping tabular output. Flag values fall back to the
// <Name>.<flag> and <flag> keys of the user config file.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	Flags     []cli.Flag
	Output    bool
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (cb *CommandBuilder) Build() *cli.Command {
	flags := append(cb.Flags, NewAWSFlags(cb.Name, cb.Meta.Config.Source)...)
	if cb.Output {
		flags = append(flags, newSchemaFlag())
		flags = append(flags, NewGlobalFlags(cb.Name, cb.Meta.Config.Source)...)
	}

	return &cli.Command{
		Name:      cb.Name,
		Usage:     cb.Usage,
		UsageText: cb.UsageText,
		Metadata: map[string]any{
			"meta": cb.Meta,
		},
		Flags: flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			config.Config.Namespace = cb.Name
			return ctx, GlobalFlagsValidator(ctx, c)
		},
		Action: cb.Action,
	}
}
