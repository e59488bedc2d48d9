package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/danmuck/objctl/internal/config"
	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/logging"
	"github.com/danmuck/objctl/internal/observability"
	"github.com/danmuck/objctl/internal/response"
	"github.com/danmuck/objctl/internal/task"
	"github.com/danmuck/objctl/internal/tasks/curl"
	"github.com/danmuck/objctl/internal/transport/mqtt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// dialFunc opens the agent transport; close releases it.
type dialFunc func(ctx context.Context, cfg config.Config) (dispatch.Transport, func(), error)

func dialMQTT(ctx context.Context, cfg config.Config) (dispatch.Transport, func(), error) {
	tr, err := mqtt.Dial(ctx, cfg.MQTT())
	if err != nil {
		return nil, nil, err
	}
	return tr, tr.Close, nil
}

// app is the per-invocation state shared by subcommands.
type app struct {
	configPath string
	dial       dialFunc

	cfg      config.Config
	registry *task.Registry
	metrics  *http.Server
}

func newRootCmd(dial dialFunc) *cobra.Command {
	a := &app{dial: dial}
	root := &cobra.Command{
		Use:           "objctl",
		Short:         "Dispatch object-module tasks to a remote agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.teardown()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to objctl TOML config (defaults when unset)")
	root.AddCommand(a.tasksCmd(), a.curlCmd(), a.configCmd())
	return root
}

func (a *app) setup() error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	a.cfg = cfg
	logging.ConfigureRuntime(cfg.LogOptions())

	a.registry = task.NewRegistry()
	if _, err := curl.Register(a.registry, cfg.CurlOptions()); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		a.metrics = observability.Serve(cfg.Metrics.Addr)
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("objctl metrics listening")
	}
	return nil
}

func (a *app) teardown() {
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			log.Warn().Err(err).Msg("objctl metrics close failed")
		}
	}
}

func (a *app) tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List registered tasks and their object modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODULE\tARGS\tBINARY\tDESCRIPTION")
			for _, d := range a.registry.List() {
				fmt.Fprintf(w, "%s\t%v\t%s\t%s\n",
					d.ModuleID(), d.Schema(), d.BinaryPath(a.cfg.Modules.Arch), d.Metadata().Description)
			}
			return w.Flush()
		},
	}
}

func (a *app) curlCmd() *cobra.Command {
	var ua string
	cmd := &cobra.Command{
		Use:       "curl <finger|print> <url>",
		Short:     curl.Description,
		Long:      curl.Description + "\n\n" + curl.Usage,
		Args:      cobra.ExactArgs(2),
		ValidArgs: curl.Commands(),
		RunE: func(cmd *cobra.Command, argv []string) error {
			inv, err := curl.Parse(argv[0], argv[1], ua, a.cfg.Curl.UserAgent)
			if err != nil {
				return err
			}
			desc, err := a.registry.Resolve(curl.ModuleID)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), desc, inv)
		},
	}
	cmd.Flags().StringVar(&ua, "ua", "", "User-Agent string to use for the request")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the objctl config file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a commented config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := config.WriteTemplate(argv[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", argv[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if _, err := config.Load(argv[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", argv[0])
			return nil
		},
	}
	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

// run dispatches one invocation and prints whatever output was collected,
// including partial output on failure or cancellation.
func (a *app) run(parent context.Context, out io.Writer, desc task.Descriptor, inv curl.Invocation) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if a.cfg.Dispatch.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Dispatch.Timeout)
		defer cancel()
	}

	tr, closeTransport, err := a.dial(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeTransport()

	d := dispatch.New(a.registry, tr, dispatch.WithPacker(a.cfg.Encoder()))
	h, err := d.Dispatch(ctx, desc, inv.Arguments(), inv.CallOptions()...)
	if err != nil {
		return describe(err, a.cfg.Dispatch.Timeout)
	}
	buf, err := h.Wait(ctx)
	printBuffer(out, buf)
	if err != nil {
		return describe(err, a.cfg.Dispatch.Timeout)
	}
	return nil
}

func printBuffer(out io.Writer, buf response.Buffer) {
	text := buf.String()
	if text == "" {
		return
	}
	fmt.Fprint(out, text)
	if text[len(text)-1] != '\n' {
		fmt.Fprintln(out)
	}
}

// describe renders an error as its kind plus the verbatim reason.
func describe(err error, timeout time.Duration) error {
	var (
		mismatch *dispatch.ArgumentSchemaMismatch
		loadErr  *dispatch.ModuleLoadError
		agentErr *dispatch.AgentError
		unknown  *task.UnknownModuleError
	)
	switch {
	case errors.As(err, &mismatch):
		return fmt.Errorf("argument schema mismatch: %w", err)
	case errors.As(err, &loadErr):
		return fmt.Errorf("module load error: %s", loadErr.Reason)
	case errors.As(err, &agentErr):
		return fmt.Errorf("agent error (%s): %s", agentErr.Code, agentErr.Reason)
	case errors.As(err, &unknown):
		return fmt.Errorf("unknown module: %s", unknown.Module)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("dispatch timed out after %s; output above is partial", timeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("dispatch cancelled; output above is partial")
	default:
		return err
	}
}
