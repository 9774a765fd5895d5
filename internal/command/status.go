// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/environment"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/meta"
	"github.com/subfish/subfish/internal/output"
)

// statusDefaultAttrs are the columns of the status listing.
var statusDefaultAttrs = []string{"kind,id,name,state,group,detail,created:age:T"}

// statusCommandAction lists the cached resources in Up order. It only reads
// the state document; AWS is asked for the account only when titles are
// shown.
func statusCommandAction(ctx context.Context, cmd *cli.Command) error {
	if DumpSchemaIfRequested(cmd, reflect.TypeOf(environment.Item{})) {
		return nil
	}

	store, err := openStore(ctx, cmd, nil)
	if err != nil {
		return err
	}

	opts := output.OptionsFromCommand(cmd)
	if opts.Format == "raw" {
		raw, err := store.YAML()
		if err != nil {
			return err
		}
		return output.SliceDiceSpit(raw, nil, opts, writer(cmd), nil)
	}

	al, err := BuildAttrs(cmd, statusDefaultAttrs...)
	if err != nil {
		return err
	}

	items := environment.Inventory(store)
	if items == nil {
		items = []environment.Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}

	if opts.Titles {
		opts.Header = statusHeader(ctx, cmd, store.String())
		opts.Footer = fmt.Sprintf("%d resources", len(items))
		if opts.Filter != "" {
			opts.Footer += " (before filtering)"
		}
	}

	return output.SliceDiceSpit(raw, al, opts, writer(cmd), nil)
}

// statusHeader names the state document and, when AWS answers, the account
// and region it describes.
func statusHeader(ctx context.Context, cmd *cli.Command, source string) string {
	header := "state " + source
	c, err := connect(ctx, cmd)
	if err != nil {
		log.Debugf("status header without account: %v", err)
		return header
	}
	account, _, err := c.Clients.Identity(ctx)
	if err != nil {
		log.Debugf("status header without account: %v", err)
		return header
	}
	return fmt.Sprintf("account %s  region %s  %s", account, c.Region, header)
}

func statusCommandBuilder(meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "status",
		Usage:     "list cached resources",
		UsageText: "subfish status [ConfigDir] [options]",
		Output:    true,
		Action:    statusCommandAction,
		Meta:      meta,
	}).Build()
}
