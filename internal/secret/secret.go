// Package secret turns password references into plaintext secrets.
//
// A reference is one of:
//
//	env:NAME   the value of the environment variable NAME
//	pass:KEY   the first line printed by `pass KEY`
//	anything   the reference itself
package secret

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/guilherme-santos/roomsync"
)

const (
	envPrefix  = "env:"
	passPrefix = "pass:"
)

// Resolver resolves references. The zero value reads the process environment
// and runs the pass command.
type Resolver struct {
	LookupEnv func(string) (string, bool)
	// Pass runs the password store for key and returns its output.
	Pass func(ctx context.Context, key string) ([]byte, error)
}

var defaultResolver Resolver

func Resolve(ctx context.Context, ref string) (string, error) {
	return defaultResolver.Resolve(ctx, ref)
}

func (r Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := ref[len(envPrefix):]
		v, ok := r.lookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", roomsync.ErrConfig, name)
		}
		return v, nil

	case strings.HasPrefix(ref, passPrefix):
		key := ref[len(passPrefix):]
		out, err := r.pass(ctx, key)
		if err != nil {
			return "", fmt.Errorf("%w: pass %s: %v", roomsync.ErrExternalTool, key, err)
		}
		line, ok := firstLine(out)
		if !ok {
			return "", fmt.Errorf("%w: pass %s: no output", roomsync.ErrExternalTool, key)
		}
		return line, nil
	}
	return ref, nil
}

func (r Resolver) lookupEnv(name string) (string, bool) {
	if r.LookupEnv != nil {
		return r.LookupEnv(name)
	}
	return os.LookupEnv(name)
}

func (r Resolver) pass(ctx context.Context, key string) ([]byte, error) {
	if r.Pass != nil {
		return r.Pass(ctx, key)
	}
	return runPass(ctx, key)
}

func runPass(ctx context.Context, key string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "pass", key)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%v: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

func firstLine(b []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(b))
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimRight(sc.Text(), "\r"), true
}
