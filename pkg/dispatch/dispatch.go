package dispatch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/wrouesnel/sheets-replicator/pkg/envutil"
	"go.uber.org/zap"
)

const (
	// ReplicatorSelector is the first argument which selects the replicator branch.
	ReplicatorSelector = "google_sheets_replicator"
	// ReplicatorExecutable is the executable launched by the replicator branch.
	ReplicatorExecutable = "sheets-replicator"
	// ConfigSheetEnvVar names the environment variable passed verbatim as the
	// value of the replicator's --id flag. No validation, no default.
	ConfigSheetEnvVar = "REPLICATOR_CONFIG_SHEET"
)

// Shell-compatible exit statuses for launch failures.
const (
	ExitSuccess         = 0
	ExitCannotExecute   = 126
	ExitCommandNotFound = 127
)

type DispatchError struct {
	msg string
}

func (d DispatchError) Error() string {
	return fmt.Sprintf("dispatch: %s", d.msg)
}

// DispatcherInitializationConfig provides initialization parameters for the Dispatcher.
type DispatcherInitializationConfig struct {
	// Logger is the *zap.Logger to use. Only failure paths emit output - the
	// happy paths must stay transparent to the dispatched process.
	Logger *zap.Logger
	// LookPath function for resolving executables on the search path
	LookPath func(file string) (string, error)
	// RunCommand function for synchronously running the replicator process
	RunCommand func(cmd *exec.Cmd) error
	// Exec function for in-place process replacement
	Exec func(argv0 string, argv []string, envv []string) error
}

// Dispatcher implements the container entrypoint branch logic: a known
// selector launches the replicator, anything else replaces the current
// process image with the named command.
type Dispatcher interface {
	Dispatch(args []string, environ []string) int
}

// NewDispatcher initializes a new Dispatcher and validates its configuration.
func NewDispatcher(config DispatcherInitializationConfig) (Dispatcher, error) {
	if config.Logger == nil {
		return nil, &DispatchError{msg: "no logger provided"}
	}

	if config.LookPath == nil {
		config.LookPath = exec.LookPath
	}

	if config.RunCommand == nil {
		config.RunCommand = func(cmd *exec.Cmd) error { return cmd.Run() }
	}

	if config.Exec == nil {
		config.Exec = syscall.Exec
	}

	return &dispatcher{DispatcherInitializationConfig: config}, nil
}

type dispatcher struct {
	DispatcherInitializationConfig
}

func (d *dispatcher) log() *zap.Logger {
	return d.Logger
}

// Dispatch inspects args[0] and either launches the replicator or execs the
// given command in place. The return value is the process exit status; in the
// exec branch Dispatch only returns if the replacement failed.
func (d *dispatcher) Dispatch(args []string, environ []string) int {
	if len(args) == 0 {
		// exec with an empty argument vector is a no-op in the shell original.
		return ExitSuccess
	}

	if args[0] == ReplicatorSelector {
		return d.runReplicator(environ)
	}

	return d.execCommand(args, environ)
}

// runReplicator launches the replicator synchronously and waits for it. The
// replicator's own exit status is deliberately discarded: only a failure to
// start the process is reported. This matches the shell entrypoint it
// replaces.
func (d *dispatcher) runReplicator(environ []string) int {
	env, err := envutil.FromEnvironment(environ)
	if err != nil {
		d.log().Error("Could not parse process environment", zap.Error(err))
		return ExitCannotExecute
	}

	// The value is passed verbatim - empty if the variable is unset.
	configSheet := env[ConfigSheetEnvVar]

	cmd := exec.Command(ReplicatorExecutable, "--id", configSheet)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Rebuilt from the parsed map: duplicate entries collapse to the last
	// value, which is what the child would observe anyway.
	cmd.Env = envutil.ToEnvironment(env)

	if err := d.RunCommand(cmd); err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			// Replicator started and exited non-zero: swallowed.
			return ExitSuccess
		}

		d.log().Error("Could not launch replicator",
			zap.String("executable", ReplicatorExecutable),
			zap.Error(err))
		return ExitCommandNotFound
	}

	return ExitSuccess
}

// execCommand replaces the current process image with args[0], preserving the
// argument vector and environment. No child process is created.
func (d *dispatcher) execCommand(args []string, environ []string) int {
	argv0, err := d.LookPath(args[0])
	if err != nil {
		d.log().Error("Command not found", zap.String("command", args[0]), zap.Error(err))
		return ExitCommandNotFound
	}

	if err := d.Exec(argv0, args, environ); err != nil {
		d.log().Error("Exec failed", zap.String("argv0", argv0), zap.Error(err))
		return ExitCannotExecute
	}

	// Unreachable: a successful exec never returns.
	return ExitSuccess
}
