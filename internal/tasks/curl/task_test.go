package curl

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/task"
	"github.com/danmuck/objctl/internal/testutil/agenttest"
	"github.com/danmuck/objctl/internal/testutil/testlog"
)

func TestRegisterDescriptor(t *testing.T) {
	testlog.Start(t)
	reg := task.NewRegistry()
	desc, err := Register(reg, Options{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if desc.ModuleID() != "curl" || desc.BinaryName() != "curl" || desc.BinaryDir() != "dist" {
		t.Fatalf("unexpected descriptor: %s %s %s", desc.ModuleID(), desc.BinaryName(), desc.BinaryDir())
	}
	schema := desc.Schema()
	if len(schema) != 3 {
		t.Fatalf("expected three schema tags, got %v", schema)
	}
	for i, tag := range schema {
		if tag != args.TagWString {
			t.Fatalf("position %d: expected wide string, got %s", i, tag)
		}
	}
	if desc.BinaryPath("x64") != "dist/curl.x64.o" {
		t.Fatalf("unexpected binary path: %s", desc.BinaryPath("x64"))
	}
	if _, err := Register(reg, Options{}); !errors.Is(err, task.ErrDescriptorExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}

func TestRegisterCustomDir(t *testing.T) {
	testlog.Start(t)
	desc, err := Register(task.NewRegistry(), Options{BinaryDir: "modules"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if desc.BinaryPath("x86") != "modules/curl.x86.o" {
		t.Fatalf("unexpected binary path: %s", desc.BinaryPath("x86"))
	}
}

func TestParseUserAgentFallbacks(t *testing.T) {
	testlog.Start(t)
	inv, err := Parse("finger", "https://example.com", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if inv.UserAgent != DefaultUserAgent {
		t.Fatalf("expected default user agent, got %q", inv.UserAgent)
	}

	inv, err = Parse("finger", "https://example.com", "", "ConfiguredUA/1.0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if inv.UserAgent != "ConfiguredUA/1.0" {
		t.Fatalf("expected configured user agent, got %q", inv.UserAgent)
	}

	inv, err = Parse("print", "https://example.com", "Custom User Agent", "ConfiguredUA/1.0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if inv.UserAgent != "Custom User Agent" {
		t.Fatalf("explicit user agent should win, got %q", inv.UserAgent)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	if _, err := Parse("fetch", "https://example.com", "", ""); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if _, err := Parse("print", "  ", "", ""); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestStatusLine(t *testing.T) {
	testlog.Start(t)
	inv, _ := Parse("finger", "https://example.com", "", "")
	want := "curl - Executing finger operation on https://example.com...\n"
	if inv.StatusLine() != want {
		t.Fatalf("unexpected status line: %q", inv.StatusLine())
	}
}

func TestArgumentsEncodeAsWideTriple(t *testing.T) {
	testlog.Start(t)
	inv := Invocation{Command: "print", URL: "a", UserAgent: "b"}
	buf, err := args.Encode(inv.Arguments())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want, _ := hex.DecodeString(
		"06000000" + "7000720069006e0074000000" +
			"02000000" + "61000000" +
			"02000000" + "62000000",
	)
	if !bytes.Equal(buf, want) {
		t.Fatalf("unexpected encoding:\n%x\nwant\n%x", buf, want)
	}
}

func TestDispatchThroughAgent(t *testing.T) {
	testlog.Start(t)
	reg := task.NewRegistry()
	desc, err := Register(reg, Options{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	agent := agenttest.New()
	agent.Load(ModuleID, agenttest.Module{
		Schema: Schema,
		Run: func(ctx context.Context, values args.List, emit func(string)) error {
			emit("[+] Page Title\t\t: Example Domain\n")
			emit("[+] User-Agent\t\t: " + values[2].Text() + "\n")
			return nil
		},
	})
	inv, err := Parse("finger", "https://example.com", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	h, err := dispatch.New(reg, agent).Dispatch(context.Background(), desc, inv.Arguments(), inv.CallOptions()...)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	buf, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	want := inv.StatusLine() + "[+] Page Title\t\t: Example Domain\n[+] User-Agent\t\t: " + DefaultUserAgent + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected response:\n%q", buf.String())
	}
}
