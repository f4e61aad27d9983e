package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/probe"
)

// CommandTimeout bounds one restart command.
const CommandTimeout = 60 * time.Second

// ReconnectTimeout bounds one reconnect call including retries.
const ReconnectTimeout = 30 * time.Second

// Action is a corrective step for one backend.
type Action interface {
	Run(ctx context.Context) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) error

// Run implements Action.
func (f ActionFunc) Run(ctx context.Context) error { return f(ctx) }

// CommandAction runs a restart command such as "systemctl restart ipfs".
type CommandAction struct {
	Argv    []string
	Timeout time.Duration
	run     probe.Runner
}

// NewCommandAction returns a CommandAction for argv bounded by
// CommandTimeout. A nil run uses os/exec.
func NewCommandAction(argv []string, run probe.Runner) *CommandAction {
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		}
	}
	return &CommandAction{Argv: argv, Timeout: CommandTimeout, run: run}
}

// Run implements Action.
func (a *CommandAction) Run(ctx context.Context) error {
	if len(a.Argv) == 0 {
		return errors.New("remediation: empty command")
	}
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	out, err := a.run(ctx, a.Argv[0], a.Argv[1:]...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("remediation: %s: %w: %s", strings.Join(a.Argv, " "), err, msg)
		}
		return fmt.Errorf("remediation: %s: %w", strings.Join(a.Argv, " "), err)
	}
	return nil
}

// HTTPAction asks a backend to re-establish connectivity by POSTing to a
// reconnect endpoint. Any 2xx answer is success.
type HTTPAction struct {
	URL    string
	client *retryablehttp.Client
}

// NewHTTPAction returns an HTTPAction for url with up to retries extra
// attempts.
func NewHTTPAction(url string, retries int) *HTTPAction {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = ReconnectTimeout
	rc.Logger = slog.Default().With("action", "reconnect")
	return &HTTPAction{URL: url, client: rc}
}

// Run implements Action.
func (a *HTTPAction) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ReconnectTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.URL, nil)
	if err != nil {
		return fmt.Errorf("remediation: build request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("remediation: reconnect %s: %w", a.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remediation: reconnect %s: unexpected status %d", a.URL, resp.StatusCode)
	}
	return nil
}

// FromConfig builds the Action configured for b, or nil when remediation is
// disabled. A restart command wins over a reconnect URL, which wins over the
// probe's own Restarter.
func FromConfig(b config.Backend, p probe.Probe) Action {
	rc := b.Remediation
	switch {
	case len(rc.Command) > 0:
		return NewCommandAction(rc.Command, nil)
	case rc.ReconnectURL != "":
		return NewHTTPAction(rc.ReconnectURL, b.Retries)
	case rc.Restart:
		if r, ok := p.(probe.Restarter); ok {
			return ActionFunc(r.Restart)
		}
	}
	return nil
}
