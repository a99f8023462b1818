package sysacct

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// runner executes the shadow-utils account tools with a pinned PATH and a
// bounded timeout per invocation.
type runner struct {
	timeout time.Duration
	env     []string
}

func newRunner() *runner {
	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=/bin:/sbin:/usr/bin:/usr/sbin:" + strings.TrimPrefix(kv, "PATH=")
		}
	}
	return &runner{timeout: 30 * time.Second, env: env}
}

func (r *runner) run(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = r.env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s %v: %s", name, args, s)
		}
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}
