// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/shellcache/internal/meta"
)

const bashCompletionScript = `# bash completion for shellcache
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_shellcache()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "install activate fetch ls keys diff serve origin purge completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local listing="--attrs -a --color -c --filter -f --output -o --sort -s --titles -t"
    local store="--store --store-dir --store-path --bucket --prefix --region --endpoint"
    local worker="--generation -g --origin --shell --bypass --timeout"

    case "$cmd" in
        install)
            local opts="$worker $store --from-manifest --manifest"
            ;;
        activate)
            local opts="$worker $store"
            ;;
        fetch)
            local opts="$worker $store $listing"
            ;;
        ls|keys)
            local opts="--generation -g $store $listing"
            ;;
        diff)
            local opts="--color -c $store"
            ;;
        serve)
            local opts="$worker $store --listen -l"
            ;;
        purge)
            local opts="--hours --store-dir"
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        *)
            local opts=""
            ;;
    esac

    case "$prev" in
        --output|-o)
            COMPREPLY=( $(compgen -W "text json yaml" -- "$cur") )
            return 0
            ;;
        --store)
            COMPREPLY=( $(compgen -W "memory disk sqlite s3" -- "$cur") )
            return 0
            ;;
        --store-dir)
            COMPREPLY=( $(compgen -o dirnames -- "$cur") )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
    return 0
}

complete -F _shellcache shellcache
`

const zshCompletionScript = `#compdef shellcache

_shellcache() {
  local -a cmds
  cmds=(
    'install:install the app shell into the current generation'
    'activate:delete every generation other than the current one'
    'fetch:answer requests from the current generation'
    'ls:list cache generations'
    'keys:list the entries of a generation'
    'diff:compare the entries of two generations'
    'serve:run the shell cache in front of the origin'
    'origin:run the origin server'
    'purge:remove old disk store files'
    'completion:generate shell completion script'
  )

  local -a listing store worker
  listing=(
  '(-c --color)'{-c,--color}'[enable colored text]'
  '(-a --attrs)'{-a,--attrs}'[column specs]:attrs'
  '(-f --filter)'{-f,--filter}'[filters to apply]:filters'
  '(-o --output)'{-o,--output}'[output format]:format:(text json yaml)'
  '(-s --sort)'{-s,--sort}'[sort columns]:columns'
  '(-t --titles)'{-t,--titles}'[show titles]'
  )
  store=(
  '--store[cache storage]:kind:(memory disk sqlite s3)'
  '--store-dir[disk store directory]:dir:_directories'
  '--store-path[sqlite database]:file:_files'
  '--bucket[s3 bucket]:bucket'
  '--prefix[s3 key prefix]:prefix'
  '--region[AWS region]:region'
  '--endpoint[S3 endpoint]:url'
  )
  worker=(
  '(-g --generation)'{-g,--generation}'[current generation]:generation'
  '--origin[controlling origin]:url'
  '*--shell[app shell asset]:path'
  '*--bypass[bypass prefix]:prefix'
  '--timeout[network timeout]:duration'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'shellcache commands' cmds
    return
  fi

  case $words[2] in
    install)
      _arguments -C $worker $store '--from-manifest[extend shell from manifest]' '--manifest[manifest path]:path'
      ;;
    activate)
      _arguments -C $worker $store
      ;;
    fetch)
      _arguments -C $worker $store $listing '*:path'
      ;;
    ls)
      _arguments -C $listing $store '(-g --generation)'{-g,--generation}'[current generation]:generation'
      ;;
    keys)
      _arguments -C $listing $store '(-g --generation)'{-g,--generation}'[generation]:generation' '::generation'
      ;;
    diff)
      _arguments -C $store '(-c --color)'{-c,--color}'[enable colored diff]' ':generation' ':generation'
      ;;
    serve)
      _arguments -C $worker $store '(-l --listen)'{-l,--listen}'[listen address]:addr'
      ;;
    purge)
      _arguments -C '--hours[age in hours]:hours' '--store-dir[disk store directory]:dir:_directories'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _shellcache shellcache
`

func CompletionCommandAction(ctx context.Context, cmd *cli.Command) error {
	out := stdout(cmd)
	shell := ""
	if args := cmd.Args().Slice(); len(args) > 0 {
		shell = args[0]
	}
	switch shell {
	case "bash":
		fmt.Fprint(out, bashCompletionScript)
	case "zsh":
		fmt.Fprint(out, zshCompletionScript)
	default:
		// Try to detect from SHELL or print help
		sh := os.Getenv("SHELL")
		if strings.HasSuffix(sh, "zsh") {
			fmt.Fprint(out, zshCompletionScript)
		} else if strings.HasSuffix(sh, "bash") {
			fmt.Fprint(out, bashCompletionScript)
		} else {
			return errors.New("usage: shellcache completion [bash|zsh]")
		}
	}
	return nil
}

func CompletionCommandBuilder(meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "shellcache completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: CompletionCommandAction,
	}
}
