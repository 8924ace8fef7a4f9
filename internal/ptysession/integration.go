package ptysession

import "fmt"

// IntegrationScripts emits OSC 133 prompt/command-boundary sequences
// from each supported shell's own hook mechanism, so the osc parser on
// the other end of the PTY can track prompt/input/execution state
// without the shell needing to know unixagent exists.
// B must fire only once the shell has actually drawn its prompt and is
// back in raw line-editing mode, not from the precmd/preexec hooks
// themselves (those run before the prompt string is printed). bash and
// zsh get this right by folding the marker into PS1 so it is emitted
// exactly when the prompt is displayed. fish has no equivalent hook
// point short of wrapping fish_prompt itself, so B is emitted alongside
// A in the same fish_prompt event — a known simplification for fish.
var IntegrationScripts = map[string]string{
	"zsh": `
__ua_precmd() {
    local ret=$?
    printf '\033]133;D;%d\007' "$ret"
    printf '\033]133;A\007'
}
__ua_preexec() {
    printf '\033]133;C\007'
}
autoload -Uz add-zsh-hook
add-zsh-hook precmd __ua_precmd
add-zsh-hook preexec __ua_preexec
PS1=$'\033]133;B\007'"$PS1"
`,
	"bash": `
__ua_precmd() {
    local ret=$?
    printf '\033]133;D;%d\007' "$ret"
    printf '\033]133;A\007'
}
PROMPT_COMMAND="__ua_precmd${PROMPT_COMMAND:+; $PROMPT_COMMAND}"
PS1=$'\033]133;B\007'"$PS1"
PS0=$'\033]133;C\007'"$PS0"
`,
	"fish": `
function __ua_precmd --on-event fish_prompt
    set -l last_status $status
    printf '\033]133;D;%d\007' $last_status
    printf '\033]133;A\007'
    printf '\033]133;B\007'
end
function __ua_preexec --on-event fish_preexec
    printf '\033]133;C\007'
end
`,
}

// IntegrationScript returns the integration script text for shell, or
// an error naming the supported set if shell is unrecognized. Used by
// the `unixagent integration <shell>` subcommand for operators who want
// to source it themselves rather than have it auto-injected.
func IntegrationScript(shell string) (string, error) {
	script, ok := IntegrationScripts[shell]
	if !ok {
		return "", fmt.Errorf("ptysession: unsupported shell %q (supported: bash, zsh, fish)", shell)
	}
	return script, nil
}
