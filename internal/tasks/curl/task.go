package curl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/task"
)

const (
	// ModuleID is the registry identifier and object module name.
	ModuleID = "curl"

	CommandFinger = "finger"
	CommandPrint  = "print"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0"
)

// Description and Usage are the operator help text for the task.
const Description = "Retrieve TLS certificate, response headers, and page title from a given URL (curl)."

const Usage = `curl is an object module that functions like a basic curl utility.

Example usage:
  - Retrieve headers, TLS certificate, and page title:
    curl finger https://example.com
  - Fetch and print the raw page content:
    curl print https://example.com
  - Use a custom User-Agent:
    curl finger https://example.com --ua "Custom User Agent"`

var (
	ErrUnknownCommand = errors.New("curl: command must be finger or print")
	ErrMissingURL     = errors.New("curl: url is required")
)

// Schema is command, url, user agent; the module reads all three as wchar_t*.
var Schema = []args.Tag{args.TagWString, args.TagWString, args.TagWString}

// Options are the operator-level defaults for the task.
type Options struct {
	UserAgent string
	BinaryDir string
}

// Register defines the curl descriptor on reg.
func Register(reg *task.Registry, opts Options) (task.Descriptor, error) {
	dir := strings.TrimSpace(opts.BinaryDir)
	if dir == "" {
		dir = task.DefaultBinaryDir
	}
	return reg.Define(ModuleID, Schema,
		task.WithBinary(dir, ModuleID),
		task.WithMetadata(task.Metadata{Description: Description, Usage: Usage}),
	)
}

// Commands lists the accepted operations in display order.
func Commands() []string {
	return []string{CommandFinger, CommandPrint}
}

// Invocation is one parsed curl request.
type Invocation struct {
	Command   string
	URL       string
	UserAgent string
}

// Parse validates operator input. An empty userAgent falls back to
// fallback, then to DefaultUserAgent.
func Parse(command, url, userAgent, fallback string) (Invocation, error) {
	command = strings.TrimSpace(command)
	if command != CommandFinger && command != CommandPrint {
		return Invocation{}, fmt.Errorf("%w: got %q", ErrUnknownCommand, command)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return Invocation{}, ErrMissingURL
	}
	ua := userAgent
	if ua == "" {
		ua = fallback
	}
	if ua == "" {
		ua = DefaultUserAgent
	}
	return Invocation{Command: command, URL: url, UserAgent: ua}, nil
}

// Arguments returns the argument list in schema order.
func (i Invocation) Arguments() args.List {
	return args.List{
		args.WString(i.Command),
		args.WString(i.URL),
		args.WString(i.UserAgent),
	}
}

// StatusLine is the front-end line prepended to the response.
func (i Invocation) StatusLine() string {
	return fmt.Sprintf("curl - Executing %s operation on %s...\n", i.Command, i.URL)
}

// CallOptions are the dispatch options every curl invocation uses.
func (i Invocation) CallOptions() []dispatch.CallOption {
	return []dispatch.CallOption{dispatch.WithPreamble(i.StatusLine())}
}
