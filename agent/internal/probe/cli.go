package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

// Runner executes name with args and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs the command with os/exec.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CLIProbe runs "<binary> <version args>" and reports the first line of
// output as the version. It is used for tools that have no daemon: the
// content-retrieval utility, the columnar engine and the model-hub client.
type CLIProbe struct {
	cfg  config.Backend
	args []string
	run  Runner
}

func newCLIProbe(b config.Backend) (Probe, error) {
	return NewCLI(b, nil), nil
}

// NewCLI returns a CLIProbe for b. A nil run uses os/exec.
func NewCLI(b config.Backend, run Runner) *CLIProbe {
	if run == nil {
		run = execRunner
	}
	args := b.Args
	if len(args) == 0 {
		args = []string{"--version"}
	}
	return &CLIProbe{cfg: b, args: args, run: run}
}

// Probe implements Probe. The command is bounded by config.CLITimeout
// regardless of the backend's configured timeout.
func (p *CLIProbe) Probe(ctx context.Context) Result {
	res := newResult(p.cfg.Name)

	ctx, cancel := context.WithTimeout(ctx, config.CLITimeout)
	defer cancel()

	start := time.Now()
	out, err := p.run(ctx, p.cfg.Binary, p.args...)
	observeLatency(&res, start)

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		res.Err = fmt.Errorf("%s %s: %w", p.cfg.Binary, strings.Join(p.args, " "), err)
		return res
	}

	res.Reachable = true
	res.Payload["binary"] = p.cfg.Binary
	res.Payload["version"] = firstLine(string(out))
	return res
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
