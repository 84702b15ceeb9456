package process

import (
	"os/exec"
	"strings"
)

// Spec describes one invocation.
// Exactly one of Command (run through the platform shell) or Program
// (executed directly with Args) is used; Program wins when both are set.
type Spec struct {
	SessionID string            `json:"sessionId"`
	Command   string            `json:"command,omitempty"`
	Program   string            `json:"program,omitempty"`
	Args      []string          `json:"args,omitempty"`
	WorkDir   string            `json:"workDir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// buildCommand constructs the *exec.Cmd for s without starting it.
func (s Spec) buildCommand() (*exec.Cmd, error) {
	if s.Program != "" {
		// #nosec G204
		return exec.Command(s.Program, s.Args...), nil
	}
	if strings.TrimSpace(s.Command) == "" {
		return nil, ErrEmptyCommand
	}
	return shellCommand(s.Command), nil
}
