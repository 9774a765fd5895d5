// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/meta"
)

// whoamiCommandAction prints the account, caller and region subfish would act
// as.
func whoamiCommandAction(ctx context.Context, cmd *cli.Command) error {
	c, err := connect(ctx, cmd)
	if err != nil {
		return err
	}

	account, arn, err := c.Clients.Identity(ctx)
	if err != nil {
		return err
	}

	w := writer(cmd)
	fmt.Fprintf(w, "Account: %s\n", account)
	fmt.Fprintf(w, "ARN:     %s\n", arn)
	fmt.Fprintf(w, "Region:  %s\n", c.Region)
	return nil
}

func whoamiCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "whoami",
		Usage:     "show the AWS identity in use",
		UsageText: "subfish whoami [options]",
		Action:    whoamiCommandAction,
		Meta:      meta,
	}).Build()
}
