// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Do not import any other subfish packages to avoid import cycles.

package version

import "runtime/debug"

// Version is the module version stamped by `go install`, "dev" otherwise.
var Version = func() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}()

// AppID identifies subfish in the user agent of every AWS request.
func AppID() string {
	return "subfish/" + Version
}
