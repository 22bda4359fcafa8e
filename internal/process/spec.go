package process

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loykin/glassd/internal/logger"
)

// Spec describes an external process to launch. The executable is invoked
// directly with Args; no shell is involved.
type Spec struct {
	Name    string        `json:"name"`
	Path    string        `json:"path"`
	Args    []string      `json:"args"`
	WorkDir string        `json:"work_dir"` // defaults to the executable's directory
	Env     []string      `json:"env"`      // appended to the current environment
	Log     logger.Config `json:"-"`
}

var errEmptyPath = errors.New("process spec requires path")

// Validate checks the fields required to build a command.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return errEmptyPath
	}
	return nil
}

// Dir returns the working directory the process will run in.
func (s Spec) Dir() string {
	if s.WorkDir != "" {
		return s.WorkDir
	}
	return filepath.Dir(s.Path)
}

// BuildCommand constructs the *exec.Cmd for this spec without starting it.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- path and args come from daemon configuration and profile files
	cmd := exec.Command(s.Path, s.Args...)
	cmd.Dir = s.Dir()
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}
