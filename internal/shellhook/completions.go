package shellhook

import "fmt"

// RenderCompletions prints a static completion script for sh. The bash,
// zsh, fish and nushell scripts cover rv's top-level commands and
// subcommands; the PowerShell script completes top-level commands only.
func RenderCompletions(sh Shell) (string, error) {
	switch sh {
	case Bash:
		return bashCompletion, nil
	case Zsh:
		return zshCompletion, nil
	case Fish:
		return fishCompletion, nil
	case Nushell:
		return nuCompletion, nil
	case PowerShell:
		return powershellCompletion, nil
	default:
		return "", &UnknownShellError{Shell: string(sh)}
	}
}

const bashCompletion = `# rv bash completion
_rv_completions() {
    local cur prev commands
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    commands="ruby clean-install ci shell cache help version"

    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    case "${prev}" in
        ruby)
            COMPREPLY=( $(compgen -W "list install uninstall pin find run" -- ${cur}) )
            ;;
        shell)
            COMPREPLY=( $(compgen -W "init env completions" -- ${cur}) )
            ;;
        cache)
            COMPREPLY=( $(compgen -W "dir prune" -- ${cur}) )
            ;;
        init|env|completions)
            COMPREPLY=( $(compgen -W "bash zsh fish nu powershell" -- ${cur}) )
            ;;
        --cache-dir|--ruby-dir)
            COMPREPLY=( $(compgen -d -- ${cur}) )
            ;;
        *)
            COMPREPLY=( $(compgen -W "--no-cache --cache-dir --ruby-dir -q --quiet -v --verbose --format" -- ${cur}) )
            ;;
    esac
}

complete -F _rv_completions rv
`

const zshCompletion = `#compdef rv
# rv zsh completion

_rv() {
    local -a commands
    commands=(
        'ruby:Manage Ruby installations'
        'clean-install:Install gems from Gemfile.lock'
        'ci:Alias for clean-install'
        'shell:Shell integration'
        'cache:Inspect or prune the gem cache'
        'help:Print help information'
        'version:Print version information'
    )

    _arguments -C \
        '(-q --quiet)'{-q,--quiet}'[Suppress non-essential output]' \
        '(-v --verbose)'{-v,--verbose}'[Verbose output]' \
        '--format[Output format]:format:(text json)' \
        '--no-cache[Disable the content-addressed cache]' \
        '--cache-dir[Cache directory]:directory:_directories' \
        '--ruby-dir[Additional Ruby install root]:directory:_directories' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'rv command' commands
            ;;
        args)
            case $words[1] in
                ruby)
                    _arguments '1: :(list install uninstall pin find run)'
                    ;;
                shell)
                    _arguments '1: :(init env completions)' '2: :(bash zsh fish nu powershell)'
                    ;;
                cache)
                    _arguments '1: :(dir prune)'
                    ;;
            esac
            ;;
    esac
}

_rv "$@"
`

const fishCompletion = `# rv fish completion

complete -c rv -f -n '__fish_use_subcommand' -a 'ruby' -d 'Manage Ruby installations'
complete -c rv -f -n '__fish_use_subcommand' -a 'clean-install' -d 'Install gems from Gemfile.lock'
complete -c rv -f -n '__fish_use_subcommand' -a 'ci' -d 'Alias for clean-install'
complete -c rv -f -n '__fish_use_subcommand' -a 'shell' -d 'Shell integration'
complete -c rv -f -n '__fish_use_subcommand' -a 'cache' -d 'Inspect or prune the gem cache'
complete -c rv -f -n '__fish_use_subcommand' -a 'help' -d 'Print help information'
complete -c rv -f -n '__fish_use_subcommand' -a 'version' -d 'Print version information'

complete -c rv -f -n '__fish_seen_subcommand_from ruby' -a 'list install uninstall pin find run'
complete -c rv -f -n '__fish_seen_subcommand_from shell' -a 'init env completions'
complete -c rv -f -n '__fish_seen_subcommand_from cache' -a 'dir prune'

complete -c rv -f -l no-cache -d 'Disable the content-addressed cache'
complete -c rv -f -l cache-dir -d 'Cache directory' -r -a '(__fish_complete_directories)'
complete -c rv -f -l ruby-dir -d 'Additional Ruby install root' -r -a '(__fish_complete_directories)'
complete -c rv -f -s q -l quiet -d 'Suppress non-essential output'
complete -c rv -f -s v -l verbose -d 'Verbose output'
complete -c rv -f -l format -d 'Output format' -x -a 'text json'
`

const nuCompletion = `# rv nushell completion
export extern "rv" [
    --no-cache
    --cache-dir: path
    --ruby-dir: path
    --quiet(-q)
    --verbose(-v)
    --format: string@"nu-complete rv format"
]

def "nu-complete rv format" [] { ["text" "json"] }

export extern "rv ruby" [command?: string@"nu-complete rv ruby command"]
def "nu-complete rv ruby command" [] { ["list" "install" "uninstall" "pin" "find" "run"] }

export extern "rv shell" [command?: string@"nu-complete rv shell command"]
def "nu-complete rv shell command" [] { ["init" "env" "completions"] }

export extern "rv cache" [command?: string@"nu-complete rv cache command"]
def "nu-complete rv cache command" [] { ["dir" "prune"] }
`

const powershellCompletion = `# rv PowerShell completion
Register-ArgumentCompleter -Native -CommandName rv -ScriptBlock {
    param($wordToComplete, $commandAst, $cursorPosition)

    $commands = @('ruby', 'clean-install', 'ci', 'shell', 'cache', 'help', 'version')
    $commands | Where-Object { $_ -like "$wordToComplete*" } | ForEach-Object {
        [System.Management.Automation.CompletionResult]::new($_, $_, 'ParameterValue', $_)
    }
}
`

// RunCompletionsUsage is the usage text shown when no shell is given,
// mirroring the error-on-missing-argument style of the command it
// replaces.
func RunCompletionsUsage() string {
	return fmt.Sprintf(`usage: rv shell completions <shell>

Generate shell completion scripts for rv.

Supported shells: bash, zsh, fish, nu, powershell

Examples:
  rv shell completions bash > /etc/bash_completion.d/rv
  rv shell completions zsh  > /usr/local/share/zsh/site-functions/_rv
  rv shell completions fish > ~/.config/fish/completions/rv.fish`)
}
