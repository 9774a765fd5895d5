// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/backend/local"
	s3be "github.com/subfish/subfish/internal/backend/s3"
)

func newSchemaFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        "schema",
		Usage:       "list the attributes available to --attrs, --filter and --sort",
		HideDefault: true,
	}
}

func newYesFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "do not ask for confirmation",
		Sources: cli.EnvVars("SUBFISH_YES"),
	}
}

// NewGlobalFlags returns the flags shaping tabular output. params[0] is the
// command namespace and params[1] the user config file; when both are given
// each flag also reads <namespace>.<flag> then <flag> from the config file.
func NewGlobalFlags(params ...string) (flags []cli.Flag) {
	attrs := &cli.StringFlag{
		Name:    "attrs",
		Aliases: []string{"a"},
		Usage:   "comma-separated list of attributes to include in results",
	}
	color := &cli.BoolFlag{
		Name:    "color",
		Aliases: []string{"c"},
		Usage:   "enable colored text output",
	}
	filter := &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "comma-separated list of filters to apply to results",
	}
	local := &cli.BoolFlag{
		Name:    "local",
		Aliases: []string{"l"},
		Usage:   "show local timestamps",
	}
	output := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output format (text, json, yaml, raw)",
		Value:   "text",
		Validator: func(value string) error {
			return FlagValidators(value, OutputValidator)
		},
	}
	padding := &cli.IntFlag{
		Name:   "padding",
		Usage:  "spaces between text columns",
		Value:  2,
		Hidden: true,
	}
	sort := &cli.StringFlag{
		Name:    "sort",
		Aliases: []string{"s"},
		Usage:   "comma-separated list of attributes to sort the results by",
	}
	titles := &cli.BoolFlag{
		Name:    "titles",
		Aliases: []string{"t"},
		Usage:   "show titles with text output",
	}

	if len(params) == 2 {
		NameSpacedValueChainFromConfigFile(params[0], params[1], "color", &color.Sources)
		NameSpacedValueChainFromConfigFile(params[0], params[1], "padding", &padding.Sources)
		NameSpacedValueChainFromConfigFile(params[0], params[1], "titles", &titles.Sources)
		attrs = NameSpacedValueChainFlagFromConfigFile(params[0], params[1], attrs)
		output = NameSpacedValueChainFlagFromConfigFile(params[0], params[1], output)
		sort = NameSpacedValueChainFlagFromConfigFile(params[0], params[1], sort)
	}

	return []cli.Flag{attrs, color, filter, local, output, padding, sort, titles}
}

// NewAWSFlags returns the flags selecting the AWS account, region and where
// state lives. Environment variables come first, then the namespaced and
// global keys of the user config file params[1].
func NewAWSFlags(params ...string) []cli.Flag {
	flags := []*cli.StringFlag{
		{
			Name:    "state",
			Usage:   "state file",
			Value:   local.DefaultPath,
			Sources: cli.EnvVars("SUBFISH_STATE"),
		},
		{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "AWS shared config profile",
			Sources: cli.EnvVars("SUBFISH_PROFILE"),
		},
		{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "AWS region",
			Sources: cli.EnvVars("SUBFISH_REGION"),
		},
		{
			Name:    "s3-bucket",
			Usage:   "mirror state to this S3 bucket",
			Sources: cli.EnvVars("SUBFISH_S3_BUCKET"),
		},
		{
			Name:    "s3-key",
			Usage:   "object key of the S3 state mirror",
			Value:   s3be.DefaultKey,
			Sources: cli.EnvVars("SUBFISH_S3_KEY"),
		},
		&cli.StringFlag{
			Name:    "passphrase",
			Usage:   "encrypt the S3 state mirror with this passphrase",
			Sources: cli.EnvVars("SUBFISH_PASSPHRASE"),
		},
	}

	out := make([]cli.Flag, 0, len(flags))
	for _, f := range flags {
		if len(params) == 2 {
			f = NameSpacedValueChainFlagFromConfigFile(params[0], params[1], f)
		}
		out = append(out, f)
	}
	return out
}

// NameSpacedValueChainFlagFromConfigFile adds namespaced and global config file
// sources to the given flag's Sources chain.
func NameSpacedValueChainFlagFromConfigFile(ns string, path string, flag *cli.StringFlag) *cli.StringFlag {
	NameSpacedValueChainFromConfigFile(ns, path, flag.Name, &flag.Sources)
	return flag
}

// NameSpacedValueChainFromConfigFile appends the <ns>.<name> and <name> keys
// of the YAML file at path to chain. No path adds nothing.
func NameSpacedValueChainFromConfigFile(ns string, path string, name string, chain *cli.ValueSourceChain) {
	if path == "" {
		return
	}

	src := yaml.YAML(ns+"."+name, altsrc.StringSourcer(path))
	chain.Chain = append(chain.Chain, src)

	src = yaml.YAML(name, altsrc.StringSourcer(path))
	chain.Chain = append(chain.Chain, src)
}
