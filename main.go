// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/cacheutil"
	"github.com/subfish/subfish/internal/command"
	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/log"
	"github.com/subfish/subfish/internal/util"
	"github.com/subfish/subfish/internal/version"
)

var ctx = context.Background()

// boolFlags never take a value, so the arg after one is never consumed as
// its value.
var boolFlags = map[string]bool{
	"--yes": true, "-y": true,
	"--titles": true, "-t": true,
	"--color": true, "-c": true,
	"--local": true, "-l": true,
	"--schema": true, "--previous": true, "--exit-code": true,
	"--help": true, "-h": true,
	"--version": true, "-v": true,
}

func main() {
	os.Exit(realMain())
}

// handleVersion checks for --version/-v and returns whether it was handled.
func handleVersion(args []string) bool {
	for _, a := range args {
		if a == "--version" || a == "-v" {
			fmt.Println(version.Version)
			return true
		}
	}
	return false
}

// handleNakedCommand appends --help if no command is provided.
func handleNakedCommand(args []string) []string {
	if len(args) <= 1 {
		return append(args, "--help")
	}
	return args
}

// processCommandArgs handles command-specific argument processing.
func processCommandArgs(args []string) []string {
	if len(args) > 1 && args[1] == "completion" {
		// Short-circuit completion: pass args directly.
		return args
	}

	args = processSetOnly(args)
	log.Debugf("args after set processing: args=%v", args)

	if len(args) > 1 && slices.Contains(command.ConfigDirCommands, args[1]) {
		args = processConfigDirArgs(args)
	}
	return deduplicateFlags(args)
}

// processConfigDirArgs makes sure the arg after the command is a config dir
// spec, inserting the CWD when it is not.
func processConfigDirArgs(args []string) []string {
	configDir, _ := os.Getwd()
	if len(args) > 2 {
		if _, _, err := util.ParseConfigDir(args[2]); err == nil {
			configDir = args[2]
		}
	}
	if len(args) == 2 {
		args = append(args, configDir)
	} else if args[2] != configDir {
		args = append(args[:2], append([]string{configDir}, args[2:]...)...)
	}
	return args
}

// deduplicateFlags drops every occurrence of a flag but the last, so flags
// expanded from an @set can be overridden on the command line. --x=v and
// --x v are the same flag. Positional args are kept in place.
func deduplicateFlags(args []string) []string {
	if len(args) <= 2 {
		return args
	}

	type token struct {
		flag  string
		parts []string
	}

	var tokens []token
	for i := 2; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			for _, rest := range args[i:] {
				tokens = append(tokens, token{parts: []string{rest}})
			}
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			tokens = append(tokens, token{parts: []string{a}})
			continue
		}

		name, _, hasValue := strings.Cut(a, "=")
		t := token{flag: name, parts: []string{a}}
		if !hasValue && !boolFlags[name] && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			t.parts = append(t.parts, args[i+1])
			i++
		}
		tokens = append(tokens, t)
	}

	last := map[string]int{}
	for i, t := range tokens {
		if t.flag != "" {
			last[t.flag] = i
		}
	}

	out := slices.Clone(args[:2])
	for i, t := range tokens {
		if t.flag != "" && last[t.flag] != i {
			continue
		}
		out = append(out, t.parts...)
	}
	return out
}

// initAndRunApp initializes the app and runs it, returning the exit code.
func initAndRunApp(args []string) int {
	// Pre-create cache directory when caching is enabled and drop snapshots
	// past their retention.
	if _, ok, err := cacheutil.EnsureBaseDir(); err != nil && ok {
		fmt.Fprintln(os.Stderr, err)
		log.Debugf("cache ensure err: err=%v", err)
	} else if ok {
		if err := cacheutil.PurgeStale(); err != nil {
			log.Debugf("cache purge err: err=%v", err)
		}
	}

	app, err := command.InitApp(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		log.Debugf("app init err: err=%v", err)
		return 1
	}

	if err := app.Run(ctx, args); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			if msg := exit.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			return exit.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		log.Debugf("app run err: err=%v", err)
		return 2
	}

	return 0
}

func realMain() int {
	log.InitLogger()

	args := os.Args
	log.Debugf("args captured: args=%v", args)

	if handleVersion(args) {
		return 0
	}

	args = handleNakedCommand(args)

	// If --help appears anywhere, skip command processing and let the CLI handle it.
	if !slices.Contains(args, "--help") && !slices.Contains(args, "-h") {
		args = processCommandArgs(args)
	}

	return initAndRunApp(args)
}

// processSetOnly handles the @set logic for all commands, expanding set
// arguments at the @set position. A set is a list under <command>.<set> in
// the user config.
func processSetOnly(args []string) []string {
	// Look for an explicit @set argument starting from index 2.
	idx := 2
	if len(args) <= idx {
		return args
	}
	set := ""
	removeIdx := -1
	for i, a := range args[idx:] {
		if strings.HasPrefix(a, "@") {
			set = a[1:]
			removeIdx = idx + i
			break
		}
	}
	if removeIdx == -1 {
		return args
	}

	// Remove the @set argument.
	args = append(args[:removeIdx], args[removeIdx+1:]...)
	// Expand the set arguments at the removeIdx position.
	setArgs, _ := config.GetStringSlice(args[1] + "." + set)
	return injectConfigSet(args, setArgs, removeIdx)
}

// injectConfigSet splits every entry on whitespace and inserts the fields at
// insertIdx.
func injectConfigSet(args []string, entries []string, insertIdx int) []string {
	if len(entries) == 0 {
		return args
	}

	var expanded []string
	for _, entry := range entries {
		expanded = append(expanded, strings.Fields(entry)...)
	}

	return append(args[:insertIdx:insertIdx], append(expanded, args[insertIdx:]...)...)
}
