package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/pkg/types"
)

// defaultExcludes drops wrapper scripts and the scan itself, which mention
// the binary name on their command line without being the process.
var defaultExcludes = []string{"python", ".py", "grep"}

// Lister returns one line per running process in "<pid> <args>" form.
type Lister func(ctx context.Context) ([]string, error)

// Starter launches name with args without waiting for it to exit.
type Starter func(name string, args ...string) error

// psLister reads the process table with ps.
func psLister(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "ps", "-eo", "pid=,args=").Output()
	if err != nil {
		return nil, fmt.Errorf("ps: %w", err)
	}
	return strings.Split(string(out), "\n"), nil
}

// detachedStarter starts the command and releases it.
func detachedStarter(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Proc is one matching process table entry.
type Proc struct {
	PID  int    `json:"pid"`
	Args string `json:"args"`
}

// ProcessProbe detects a daemon that exposes no status endpoint (the cluster
// follower) by scanning process command lines.
//
// The heuristic is text matching only: a line matches when it contains the
// match string and none of the exclusions. It can both miss renamed
// binaries and match unrelated processes that mention the name.
type ProcessProbe struct {
	cfg     config.Backend
	match   string
	exclude []string
	list    Lister
	start   Starter
}

func newProcessProbe(b config.Backend) (Probe, error) {
	return NewProcess(b, nil, nil), nil
}

// NewProcess returns a ProcessProbe for b. Nil list or start use ps and
// os/exec respectively.
func NewProcess(b config.Backend, list Lister, start Starter) *ProcessProbe {
	if list == nil {
		list = psLister
	}
	if start == nil {
		start = detachedStarter
	}
	match := b.Match
	if match == "" {
		match = b.Binary
	}
	exclude := append(append([]string{}, defaultExcludes...), b.Exclude...)
	return &ProcessProbe{cfg: b, match: match, exclude: exclude, list: list, start: start}
}

// Probe implements Probe. A backend with no matching process is reachable
// in the sense that the scan succeeded, and is hinted as stopped.
func (p *ProcessProbe) Probe(ctx context.Context) Result {
	res := newResult(p.cfg.Name)

	start := time.Now()
	lines, err := p.list(ctx)
	observeLatency(&res, start)
	if err != nil {
		res.Err = fmt.Errorf("list processes: %w", err)
		return res
	}

	procs := matchProcesses(lines, p.match, p.exclude)
	res.Metrics["process_count"] = float64(len(procs))
	res.Payload["match"] = p.match
	res.Payload["processes"] = procs

	if len(procs) == 0 {
		res.Hint = types.HealthStopped
		return res
	}
	res.Reachable = true
	return res
}

// Restart launches the configured binary detached. It implements Restarter.
func (p *ProcessProbe) Restart(_ context.Context) error {
	if p.cfg.Binary == "" {
		return fmt.Errorf("process %q: no binary configured", p.cfg.Name)
	}
	if err := p.start(p.cfg.Binary, p.cfg.Args...); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Binary, err)
	}
	return nil
}

// matchProcesses returns the entries of lines whose command line contains
// match and none of exclude. Lines that do not start with a pid are skipped.
func matchProcesses(lines []string, match string, exclude []string) []Proc {
	procs := []Proc{}
	if match == "" {
		return procs
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		pidText, args, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidText)
		if err != nil {
			continue
		}
		args = strings.TrimSpace(args)
		if !strings.Contains(args, match) || containsAny(args, exclude) {
			continue
		}
		procs = append(procs, Proc{PID: pid, Args: args})
	}
	return procs
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
