// SPDX-License-Identifier: MIT

package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/streamloft/vodhub/internal/procgroup"
)

// ExecRunner runs commands via os/exec. The production Runner. Commands get
// their own process group so cancellation reaps forked encoder helpers too.
type ExecRunner struct{}

// Run executes the command and returns stdout. Stderr is captured and folded
// into the error on failure; ffmpeg writes its progress chatter there.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		return procgroup.Kill(cmd, syscall.SIGKILL)
	}
	cmd.WaitDelay = 10 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > 2048 {
			tail = tail[len(tail)-2048:]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(tail))
	}
	return stdout.Bytes(), nil
}
