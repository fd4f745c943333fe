package dependency

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var forbiddenPrefixes = []string{"/etc", "/sys", "/proc", "/dev"}

// ValidateCommandRequest performs security checks before command execution:
//  1. the command is whitelisted (when a whitelist is configured)
//  2. no argument traverses directories or touches system directories
//  3. the working directory, when set, lies inside a data directory
func ValidateCommandRequest(req CommandRequest, config ExecutorConfig) error {
	if len(config.AllowedCommands) > 0 && !slices.Contains(config.AllowedCommands, req.Command) {
		return fmt.Errorf("command %s is not in whitelist (allowed: %v)", req.Command, config.AllowedCommands)
	}

	for _, arg := range req.Args {
		if containsTraversal(arg) {
			return fmt.Errorf("argument contains dangerous characters '..' (path traversal attempt): %s", arg)
		}
		for _, prefix := range forbiddenPrefixes {
			if arg == prefix || strings.HasPrefix(arg, prefix+"/") {
				return fmt.Errorf("argument attempts to access forbidden system directory %s: %s", prefix, arg)
			}
		}
	}

	if req.WorkingDir != "" {
		if err := validatePathIn(req.WorkingDir, config.DataDirs); err != nil {
			return fmt.Errorf("invalid working directory: %w", err)
		}
	}

	return nil
}

// containsTraversal looks for ".." as a path element; file names such as
// "take..2.mp4" are allowed.
func containsTraversal(arg string) bool {
	for _, part := range strings.FieldsFunc(arg, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return true
		}
	}
	return false
}
