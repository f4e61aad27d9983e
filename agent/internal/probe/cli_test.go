package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/config"
)

func TestCLIProbe_Version(t *testing.T) {
	var gotName string
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("\nlassie version v0.23.0\nbuilt with go1.22\n"), nil
	}

	p := NewCLI(config.Backend{Name: "lassie", Kind: config.KindCLI, Binary: "lassie"}, run)
	res := p.Probe(context.Background())
	if res.Err != nil {
		t.Fatalf("res.Err = %v", res.Err)
	}
	if !res.Reachable {
		t.Error("Reachable = false, want true")
	}
	if gotName != "lassie" || len(gotArgs) != 1 || gotArgs[0] != "--version" {
		t.Errorf("ran %s %v, want lassie [--version]", gotName, gotArgs)
	}
	if got := res.Payload["version"]; got != "lassie version v0.23.0" {
		t.Errorf("Payload[version] = %v", got)
	}
}

func TestCLIProbe_CustomArgs(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte("1.0.0"), nil
	}
	p := NewCLI(config.Backend{Name: "hf", Kind: config.KindCLI, Binary: "huggingface-cli", Args: []string{"version"}}, run)
	p.Probe(context.Background())
	if len(gotArgs) != 1 || gotArgs[0] != "version" {
		t.Errorf("args = %v, want [version]", gotArgs)
	}
}

func TestCLIProbe_Failure(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 127")
	}
	p := NewCLI(config.Backend{Name: "duckdb", Kind: config.KindCLI, Binary: "duckdb"}, run)
	res := p.Probe(context.Background())
	if res.Err == nil || res.Reachable {
		t.Errorf("Probe() = reachable %v err %v, want failure", res.Reachable, res.Err)
	}
}

func TestCLIProbe_DeadlineApplied(t *testing.T) {
	var deadline time.Time
	var ok bool
	run := func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		deadline, ok = ctx.Deadline()
		return []byte("v1"), nil
	}
	p := NewCLI(config.Backend{Name: "duckdb", Kind: config.KindCLI, Binary: "duckdb", Timeout: time.Minute}, run)
	p.Probe(context.Background())
	if !ok {
		t.Fatal("runner context has no deadline")
	}
	if remaining := time.Until(deadline); remaining > config.CLITimeout {
		t.Errorf("deadline in %v, want at most %v", remaining, config.CLITimeout)
	}
}

func TestCLIProbe_ContextExpiry(t *testing.T) {
	run := func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, errors.New("signal: killed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewCLI(config.Backend{Name: "lassie", Kind: config.KindCLI, Binary: "lassie"}, run)
	res := p.Probe(ctx)
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
}

func TestFirstLine(t *testing.T) {
	tests := map[string]string{
		"":                   "",
		"v1.0\n":             "v1.0",
		"\n\n  duckdb v1 \n": "duckdb v1",
	}
	for in, want := range tests {
		if got := firstLine(in); got != want {
			t.Errorf("firstLine(%q) = %q, want %q", in, got, want)
		}
	}
}
