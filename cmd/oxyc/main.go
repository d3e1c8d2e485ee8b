// Command oxyc compiles glTF models into a path tracing scene and prints its statistics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine"
	"github.com/Carmen-Shannon/oxy-trace/engine/config"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	logLevel   string
	bindless   bool
	profile    bool
	jsonLogs   bool
	wgpu       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "oxyc [flags] model.gltf|model.glb...",
		Short:        "Compile glTF models into a path tracing scene",
		Long:         "oxyc imports every model into one scene, finalizes it and prints the scene statistics.",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), settings, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "settings file (.toml, .yaml or .yml)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVar(&opts.bindless, "bindless", false, "store textures as bindless images instead of atlas pages")
	f.BoolVar(&opts.profile, "profile", false, "log stage timings and heap statistics")
	f.BoolVar(&opts.jsonLogs, "json", false, "write logs as JSON")
	f.BoolVar(&opts.wgpu, "wgpu", false, "upload textures to a WebGPU device instead of host memory")
	return cmd
}

// loadSettings reads the settings file, if any, and applies the flags the user set on top.
func loadSettings(cmd *cobra.Command, opts *options) (config.Settings, error) {
	settings := config.Default()
	if opts.configPath != "" {
		var err error
		if settings, err = config.Load(opts.configPath); err != nil {
			return settings, err
		}
	}

	f := cmd.Flags()
	if f.Changed("log-level") {
		settings.LogLevel = opts.logLevel
	}
	if f.Changed("bindless") {
		settings.Bindless = opts.bindless
	}
	if f.Changed("profile") {
		settings.Profile = opts.profile
	}
	return settings, settings.Validate()
}

func run(ctx context.Context, out, logOut io.Writer, settings config.Settings, opts *options, paths []string) error {
	level, err := settings.Level()
	if err != nil {
		return err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(logOut, handlerOpts)
	if opts.jsonLogs {
		handler = slog.NewJSONHandler(logOut, handlerOpts)
	}
	logger := slog.New(handler)
	common.SetLogger(logger)

	engineOpts := []engine.EngineBuilderOption{
		engine.WithSettings(settings),
		engine.WithLogger(logger),
		engine.WithProfiling(settings.Profile),
	}
	if opts.wgpu {
		dev, err := gpu.NewWGPUDevice()
		if err != nil {
			return fmt.Errorf("oxyc: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithDevice(dev))
	}

	e := engine.NewEngine(engineOpts...)
	report, err := e.Compile(ctx, 0, paths...)
	if err != nil {
		return err
	}
	return printReport(out, report)
}

func printReport(w io.Writer, r *engine.Report) error {
	st := r.Stats
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		name  string
		value any
	}{
		{"state", st.State},
		{"meshes", st.Meshes},
		{"instances", st.Instances},
		{"materials", st.Materials},
		{"textures", st.Textures},
		{"triangles", st.Triangles},
		{"vertices", st.Vertices},
		{"bvh nodes", st.Nodes},
		{"tlas nodes", st.TLASNodes},
		{"lights", st.Lights},
		{"visible lights", st.VisibleLights},
		{"blocker lights", st.BlockerLights},
		{"atlas pages", st.AtlasPages},
		{"qtree levels", st.QTreeLevels},
		{"env light", st.EnvLightActive},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", row.name, row.value)
	}
	return tw.Flush()
}
