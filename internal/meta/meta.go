// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package meta

import (
	"context"

	"github.com/subfish/subfish/internal/config"
)

// ConfigDirSpec is the resolved config directory (templates, policies and
// blueprints) and the optional blueprint name given as `dir::name`.
type ConfigDirSpec struct {
	ConfigDir string
	Blueprint string
}

// Meta contains runtime metadata shared by commands: the CLI arguments, the
// loaded user configuration, the context, the config directory and the
// directory subfish started in.
type Meta struct {
	Args    []string
	Config  config.Type
	Context context.Context
	ConfigDirSpec
	StartingDir string
}
