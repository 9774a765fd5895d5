// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/subfish/subfish/internal/meta"
)

const bashCompletionScript = `# bash completion for subfish
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_subfish()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "up down refresh status show inspect diff versions whoami completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local aws="--profile -p --region -r --state --s3-bucket --s3-key --passphrase"
    local common="--attrs -a --color -c --filter -f --local -l --output -o --sort -s --titles -t --schema"

    # Determine if an optional ConfigDir (first non-flag after subcommand)
    # has already been provided
    local have_dir=0
    local idx=2
    while [[ $idx -lt ${#COMP_WORDS[@]} && $idx -lt $COMP_CWORD ]]; do
        local w=${COMP_WORDS[$idx]}
        if [[ $w != -* ]]; then
            have_dir=1
            break
        fi
        ((idx++))
    done

    case "$cmd" in
        up|refresh)
            local opts="$aws"
            ;;
        down)
            local opts="$aws --yes -y"
            ;;
        status)
            local opts="$aws $common"
            ;;
        diff)
            local opts="$aws --against --color --exit-code --ignore --previous"
            ;;
        versions)
            local opts="$aws $common --limit"
            have_dir=1
            ;;
        show)
            local opts="$aws --output -o"
            have_dir=1
            ;;
        inspect)
            local opts="$aws --history"
            have_dir=1
            ;;
        whoami)
            local opts="$aws"
            have_dir=1
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        *)
            local opts="$aws"
            ;;
    esac

    if [[ "$prev" == "--output" || "$prev" == "-o" ]]; then
        if [[ "$cmd" == "show" ]]; then
            COMPREPLY=( $(compgen -W "yaml json" -- "$cur") )
        else
            COMPREPLY=( $(compgen -W "text json yaml raw" -- "$cur") )
        fi
        return 0
    fi

    if [[ "$cur" == -* || $have_dir -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
        return 0
    fi

    # Otherwise, we're on the optional ConfigDir positional, complete directories
    COMPREPLY=( $(compgen -o dirnames -- "$cur") )
    return 0
}

complete -F _subfish subfish
`

const zshCompletionScript = `#compdef subfish

_subfish() {
  local -a cmds
  cmds=(
    'up:create the topology of a blueprint'
    'down:delete every cached resource'
    'refresh:re-read cached resources from AWS'
    'status:list cached resources'
    'show:print the state document or part of it'
    'inspect:query the state document with paths and HCL expressions'
    'diff:show drift between the state document and AWS'
    'versions:list stored versions of the state document'
    'whoami:show the AWS identity in use'
    'completion:generate shell completion script'
  )

  local -a aws
  aws=(
  '(-p --profile)'{-p,--profile}'[AWS shared config profile]:profile'
  '(-r --region)'{-r,--region}'[AWS region]:region'
  '--state[state file]:file:_files'
  '--s3-bucket[mirror state to this S3 bucket]:bucket'
  '--s3-key[object key of the S3 state mirror]:key'
  '--passphrase[encrypt the S3 state mirror with this passphrase]:passphrase'
  )

  local -a common
  common=(
  '(-a --attrs)'{-a,--attrs}'[attributes to include]:attrs'
  '(-c --color)'{-c,--color}'[enable colored text]'
  '(-f --filter)'{-f,--filter}'[filters to apply]:filters'
  '(-l --local)'{-l,--local}'[show local timestamps]'
  '(-o --output)'{-o,--output}'[output format]:format:(text json yaml raw)'
  '(-s --sort)'{-s,--sort}'[sort attributes]:attrs'
  '(-t --titles)'{-t,--titles}'[show titles]'
  '--schema[list attributes]'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'subfish commands' cmds
    return
  fi

  local curcontext="$curcontext" state line
  case $words[2] in
    up|refresh)
      _arguments -C $aws '::ConfigDir:_directories'
      ;;
    down)
      _arguments -C $aws '(-y --yes)'{-y,--yes}'[do not ask for confirmation]' '::ConfigDir:_directories'
      ;;
    status)
      _arguments -C $aws $common '::ConfigDir:_directories'
      ;;
    diff)
      _arguments -C $aws \
        '*--against[compare stored versions]:version:_files' \
        '--color[color additions and removals]' \
        '--exit-code[exit 1 when there are differences]' \
        '--ignore[top-level state keys to leave out]:key' \
        '--previous[compare with the version the last save replaced]' \
        '::ConfigDir:_directories'
      ;;
    show)
      _arguments -C $aws '(-o --output)'{-o,--output}'[document format]:format:(yaml json)' '::path'
      ;;
    inspect)
      _arguments -C $aws '--history[console history file]:file:_files' '*::query'
      ;;
    versions)
      _arguments -C $aws $common '--limit[limit versions returned]:limit'
      ;;
    whoami)
      _arguments -C $aws
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys
# is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _subfish subfish
`

func completionCommandAction(ctx context.Context, cmd *cli.Command) error {
	shell := cmd.Args().First()
	if shell == "" {
		sh := os.Getenv("SHELL")
		switch {
		case strings.HasSuffix(sh, "zsh"):
			shell = "zsh"
		case strings.HasSuffix(sh, "bash"):
			shell = "bash"
		}
	}

	w := writer(cmd)
	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		fmt.Fprintln(cmd.Root().ErrWriter, "usage: subfish completion [bash|zsh]")
	}
	return nil
}

func completionCommandBuilder(meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "subfish completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: completionCommandAction,
	}
}
