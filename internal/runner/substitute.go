package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Vars are the values available to command substitution.
type Vars struct {
	EnvName string
	Paths   Paths

	// PosArgs are the positional arguments passed after "--" on the
	// envmatrix command line.
	PosArgs []string
}

// substitutionRegex matches {name} and {name:default}. Cross-section
// references ({[section]key}) are resolved at load time and never reach here.
var substitutionRegex = regexp.MustCompile(`\{([A-Za-z_]+)(?::([^{}]*))?\}`)

// Expand replaces substitutions in a command line. Unknown names are
// left untouched.
func Expand(line string, vars Vars) string {
	return substitutionRegex.ReplaceAllStringFunc(line, func(token string) string {
		m := substitutionRegex.FindStringSubmatch(token)
		name, def := m[1], m[2]
		hasDefault := strings.Contains(token, ":")

		switch name {
		case "posargs":
			if len(vars.PosArgs) == 0 {
				if hasDefault {
					return def
				}
				return ""
			}
			return joinQuoted(vars.PosArgs)
		case "envname":
			return vars.EnvName
		case "envdir":
			return vars.Paths.EnvDir
		case "envbindir":
			return vars.Paths.BinDir
		case "toxinidir", "rootdir":
			return vars.Paths.RootDir
		default:
			return token
		}
	})
}

// Command is a parsed command line ready for execution.
type Command struct {
	// Line is the command line after substitution, for reporting.
	Line string

	// Args is the split argv.
	Args []string

	// IgnoreExit is true for lines prefixed with "-".
	IgnoreExit bool
}

// ParseCommand expands and splits a command line using POSIX shell quoting
// rules. No shell is involved: pipes and redirections are passed as
// literal arguments.
func ParseCommand(line string, vars Vars) (Command, error) {
	cmd := Command{}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "-") {
		cmd.IgnoreExit = true
		trimmed = strings.TrimSpace(trimmed[1:])
	}

	cmd.Line = strings.TrimSpace(Expand(trimmed, vars))
	args, err := shlex.Split(cmd.Line)
	if err != nil {
		return Command{}, fmt.Errorf("cannot split command %q: %w", cmd.Line, err)
	}
	if len(args) == 0 {
		return Command{}, fmt.Errorf("command %q is empty after substitution", line)
	}
	cmd.Args = args
	return cmd, nil
}

// safeArgRegex matches arguments that need no quoting.
var safeArgRegex = regexp.MustCompile(`^[A-Za-z0-9_./=:,@%+-]+$`)

// joinQuoted joins args so that splitting the result yields args again.
func joinQuoted(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		if safeArgRegex.MatchString(a) {
			quoted = append(quoted, a)
			continue
		}
		quoted = append(quoted, "'"+strings.ReplaceAll(a, "'", `'"'"'`)+"'")
	}
	return strings.Join(quoted, " ")
}
