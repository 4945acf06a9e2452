package rules

import (
	"bytes"
	"errors"
	"os/exec"
	"regexp"
)

// $$, $name, ${name}, or a lone $
var templateToken = regexp.MustCompile(`\$(?:(\$)|([_A-Za-z][_A-Za-z0-9]*)|\{([_A-Za-z][_A-Za-z0-9]*)\}|())`)

// Substitute replaces $name and ${name} in template with values from params.
// Names missing from params are left as written and $$ becomes $; it never
// fails.
func Substitute(template string, params Params) string {
	return templateToken.ReplaceAllStringFunc(template, func(token string) string {
		groups := templateToken.FindStringSubmatch(token)
		switch {
		case groups[1] != "":
			return "$"
		case groups[2] != "":
			if v, ok := params[groups[2]]; ok {
				return v
			}
		case groups[3] != "":
			if v, ok := params[groups[3]]; ok {
				return v
			}
		}
		return token
	})
}

type commandOutput struct {
	command  string
	stdout   string
	stderr   string
	exitCode int
}

// runCommand runs command through the shell in dir. There is no timeout: a
// command that never exits blocks its request.
func runCommand(command, dir string) (commandOutput, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := commandOutput{
		command:  command,
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		exitCode: 0,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.exitCode = exitErr.ExitCode()
	} else if err != nil {
		out.exitCode = -1
	}

	return out, err
}
