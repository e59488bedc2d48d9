package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/config"
	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/tasks/curl"
	"github.com/danmuck/objctl/internal/testutil/agenttest"
	"github.com/danmuck/objctl/internal/testutil/testlog"
)

func fakeDial(agent *agenttest.Agent) dialFunc {
	return func(ctx context.Context, cfg config.Config) (dispatch.Transport, func(), error) {
		return agent, func() {}, nil
	}
}

func execute(t *testing.T, dial dialFunc, argv ...string) (string, error) {
	t.Helper()
	root := newRootCmd(dial)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(argv)
	err := root.Execute()
	return out.String(), err
}

func curlAgent() *agenttest.Agent {
	agent := agenttest.New()
	agent.Load(curl.ModuleID, agenttest.Module{
		Schema: curl.Schema,
		Run: func(ctx context.Context, values args.List, emit func(string)) error {
			emit("[+] " + values[0].Text() + " " + values[1].Text() + "\n")
			emit("[+] UA: " + values[2].Text() + "\n")
			return nil
		},
	})
	return agent
}

func TestCurlCommandDispatches(t *testing.T) {
	testlog.Start(t)
	agent := curlAgent()
	out, err := execute(t, fakeDial(agent), "curl", "finger", "https://example.com", "--ua", "Custom User Agent")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := "curl - Executing finger operation on https://example.com...\n" +
		"[+] finger https://example.com\n" +
		"[+] UA: Custom User Agent\n"
	if out != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", out, want)
	}
	reqs := agent.Requests()
	if len(reqs) != 1 || reqs[0].BinaryName != "curl" || reqs[0].BinaryDir != "dist" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
}

func TestCurlCommandUsesConfiguredUserAgentAndEncoding(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "objctl.toml")
	content := `
[encoding]
wide_length = "bytes"

[modules]
dir = "modules"

[tasks.curl]
user_agent = "ConfiguredUA"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	agent := curlAgent().WithWideLength(args.LengthBytes)
	out, err := execute(t, fakeDial(agent), "--config", path, "curl", "print", "https://example.com")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "[+] UA: ConfiguredUA\n") {
		t.Fatalf("configured user agent not used:\n%s", out)
	}
	reqs := agent.Requests()
	if len(reqs) != 1 || reqs[0].BinaryDir != "modules" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	want, err := args.Encoder{WideLength: args.LengthBytes}.Encode(args.List{
		args.WString("print"), args.WString("https://example.com"), args.WString("ConfiguredUA"),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(reqs[0].Arguments, want) {
		t.Fatalf("arguments not encoded in bytes mode")
	}
}

func TestCurlCommandModuleLoadError(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, fakeDial(agenttest.New()), "curl", "finger", "https://example.com")
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() != "module load error: module curl not loaded" {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "curl - Executing finger operation") {
		t.Fatalf("status line should still be printed, got %q", out)
	}
}

func TestCurlCommandRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	agent := curlAgent()
	if _, err := execute(t, fakeDial(agent), "curl", "fetch", "https://example.com"); !errors.Is(err, curl.ErrUnknownCommand) {
		t.Fatalf("expected unknown command, got %v", err)
	}
	if _, err := execute(t, fakeDial(agent), "curl", "finger"); err == nil {
		t.Fatalf("expected argument count error")
	}
	if n := len(agent.Requests()); n != 0 {
		t.Fatalf("rejected input reached the agent %d times", n)
	}
}

func TestDialErrorReturned(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("broker unreachable")
	dial := func(ctx context.Context, cfg config.Config) (dispatch.Transport, func(), error) {
		return nil, nil, boom
	}
	if _, err := execute(t, dial, "curl", "finger", "https://example.com"); !errors.Is(err, boom) {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestTasksCommandListsCurl(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, fakeDial(curlAgent()), "tasks")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "dist/curl.x64.o") || !strings.Contains(out, "[wstring wstring wstring]") {
		t.Fatalf("unexpected tasks output:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "objctl.toml")
	if _, err := execute(t, nil, "config", "init", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	out, err := execute(t, nil, "config", "validate", path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "ok") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestDescribeTimeout(t *testing.T) {
	testlog.Start(t)
	err := describe(context.DeadlineExceeded, 0)
	if !strings.Contains(err.Error(), "partial") {
		t.Fatalf("unexpected message: %v", err)
	}
}
