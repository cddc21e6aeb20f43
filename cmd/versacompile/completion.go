package main

import (
	"fmt"
	"os"
)

const bashCompletion = `_versacompile_completions() {
    local cur prev
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    commands="watch all prod clean status completion config"

    if [ "$COMP_CWORD" -eq 1 ]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    case "$prev" in
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}
complete -F _versacompile_completions versacompile
`

const zshCompletion = `#compdef versacompile

_versacompile() {
    local -a commands
    commands=(
        'watch:Compile once, then watch for changes and serve with HMR'
        'all:Compile every source file once'
        'prod:Compile once with production transforms'
        'clean:Clear caches and compiled output'
        'status:Show cache/resolver/worker-pool metrics'
        'completion:Generate shell completion script'
        'config:Show the resolved configuration'
    )
    _describe 'command' commands
}
_versacompile
`

const fishCompletion = `complete -c versacompile -n "__fish_use_subcommand" -a watch -d "Compile once, then watch for changes and serve with HMR"
complete -c versacompile -n "__fish_use_subcommand" -a all -d "Compile every source file once"
complete -c versacompile -n "__fish_use_subcommand" -a prod -d "Compile once with production transforms"
complete -c versacompile -n "__fish_use_subcommand" -a clean -d "Clear caches and compiled output"
complete -c versacompile -n "__fish_use_subcommand" -a status -d "Show cache/resolver/worker-pool metrics"
complete -c versacompile -n "__fish_use_subcommand" -a completion -d "Generate shell completion script"
complete -c versacompile -n "__fish_use_subcommand" -a config -d "Show the resolved configuration"
`

// runCompletion implements `versacompile completion <shell>`.
func runCompletion(args []string, globals GlobalFlags) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: versacompile completion bash|zsh|fish")
		return 1
	}

	switch args[0] {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Error: unsupported shell %q (want bash, zsh, or fish)\n", args[0])
		return 1
	}
	return 0
}
