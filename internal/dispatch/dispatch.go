// Package dispatch runs user commands scoped to a registered tree. The
// child process starts in the target's root with the grove context in its
// environment: the target root, one variable per outgoing link, and any
// variables declared in the tree's grove.env file.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/name"
)

var (
	// ErrChildProcess flags a command that could not be spawned at all
	// (missing binary, permission denied). A command that started and
	// exited nonzero is not an error; its exit code is the result.
	ErrChildProcess = errors.New("failed to run command")
)

// EnvFile is the per-tree environment file loaded into dispatched
// commands.
const EnvFile = "grove.env"

const (
	envTargetRoot = "GROVE_TARGET_ROOT"
	envLinkPrefix = "GROVE_LINK_"
)

// ResolvedLink is one outgoing link of the target with its alias path
// resolved.
type ResolvedLink struct {
	Alias string
	Path  string
}

// Target is the execution scope for one dispatch.
type Target struct {
	Name  name.Name
	Root  string
	Links []ResolvedLink
}

// Result describes one finished dispatch.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Dispatcher executes commands against targets. The zero value is not
// usable; construct with New.
type Dispatcher struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New returns a dispatcher wired to the process's standard streams.
func New() *Dispatcher {
	return &Dispatcher{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
}

// WithStreams overrides the child's standard streams. For tests.
func (d *Dispatcher) WithStreams(stdin io.Reader, stdout, stderr io.Writer) *Dispatcher {
	d.stdin, d.stdout, d.stderr = stdin, stdout, stderr
	return d
}

// Env returns the variables grove injects for target, in application
// order: grove.env entries first, then the GROVE_* context variables,
// which always win.
func Env(target Target) (map[string]string, error) {
	vars := map[string]string{}

	envPath := filepath.Join(target.Root, EnvFile)
	if _, err := os.Stat(envPath); err == nil {
		fileVars, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", envPath, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}

	vars[envTargetRoot] = target.Root
	for _, l := range target.Links {
		vars[LinkVar(l.Alias)] = l.Path
	}
	return vars, nil
}

// LinkVar returns the environment variable name carrying a link alias's
// resolved path: the alias uppercased with hyphens mapped to underscores.
func LinkVar(alias string) string {
	return envLinkPrefix + strings.ToUpper(strings.ReplaceAll(alias, "-", "_"))
}

// Exec runs command with args in target's root and returns the child's
// exit code verbatim. Interrupt and termination signals received while the
// child runs are forwarded to it, and Exec always waits for the child to
// terminate. Context cancellation terminates the child.
func (d *Dispatcher) Exec(ctx context.Context, target Target, command string, args []string) (Result, error) {
	start := time.Now()

	vars, err := Env(target)
	if err != nil {
		return Result{}, err
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = target.Root
	cmd.Stdin = d.stdin
	cmd.Stdout = d.stdout
	cmd.Stderr = d.stderr
	cmd.Env = mergeEnv(os.Environ(), vars)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrChildProcess, command, err)
	}
	log.Debug(log.CatExec, "spawned command", "target", target.Name, "command", command, "pid", cmd.Process.Pid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case sig := <-sigCh:
				_ = cmd.Process.Signal(sig)
			case <-ctx.Done():
				_ = cmd.Process.Signal(syscall.SIGTERM)
				<-done
				return
			case <-done:
				return
			}
		}
	}()

	err = cmd.Wait()
	close(done)

	result := Result{ExitCode: 0, Duration: time.Since(start)}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrChildProcess, command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	log.Info(log.CatExec, "command finished", "target", target.Name, "command", command,
		"exit", result.ExitCode, "duration", result.Duration)
	return result, nil
}

// mergeEnv overlays vars onto base, replacing existing keys in place so
// child processes see each variable once.
func mergeEnv(base []string, vars map[string]string) []string {
	overridden := make(map[string]bool, len(vars))
	env := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key := kv[:strings.IndexByte(kv+"=", '=')]
		if v, ok := vars[key]; ok {
			env = append(env, key+"="+v)
			overridden[key] = true
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		if !overridden[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
