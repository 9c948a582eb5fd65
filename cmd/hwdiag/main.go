package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rackworks/hwdiag/internal/log"
	"github.com/rackworks/hwdiag/internal/model"
	"github.com/rackworks/hwdiag/internal/netcheck"
	"github.com/rackworks/hwdiag/internal/report"
	"github.com/rackworks/hwdiag/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/hwdiag on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag

	flagTargets  []string
	flagInterval string
	flagTimeout  string
	flagJSON     bool
	flagPort     uint16
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "hwdiag")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is hwdiag.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	for _, cmd := range []*cobra.Command{runCmd, watchCmd} {
		cmd.Flags().StringSliceVarP(&flagTargets, "targets", "t", nil, "hardware locations (xnames) to run against")
		cmd.Flags().StringVar(&flagInterval, "interval", "", "poll interval, e.g. 30s (overrides config)")
		cmd.Flags().StringVar(&flagTimeout, "timeout", "", "per-run timeout, e.g. 10m (overrides config)")
		_ = cmd.MarkFlagRequired("targets")
	}
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "print the summary as JSON")
	preflightCmd.Flags().StringSliceVarP(&flagTargets, "targets", "t", nil, "controller hostnames to inspect")
	preflightCmd.Flags().Uint16Var(&flagPort, "port", 443, "controller TLS port")
	_ = preflightCmd.MarkFlagRequired("targets")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initHwdiag

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("hwdiag failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "hwdiag",
	Short:        "Tool launching vendor diagnostics on hardware controllers",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "run submits one diagnostic to every target and polls it to completion",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch <command> [args...]",
	Short: "watch repeats the diagnostic on the configured schedule",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doWatch,
}

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "preflight checks controller reachability and TLS certificates",
	RunE:  doPreflight,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of hwdiag",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("hwdiag: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("hwdiag: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func invocation(cmd *cobra.Command, args []string) (service.Invocation, error) {
	interval, timeout, err := service.ResolvePoll(config.Poll)
	if err != nil {
		return service.Invocation{}, err
	}
	if cmd.Flags().Changed("interval") {
		interval, err = model.ParseSegDuration(flagInterval)
		if err != nil {
			return service.Invocation{}, fmt.Errorf("parsing --interval: %w", err)
		}
	}
	if cmd.Flags().Changed("timeout") {
		timeout, err = model.ParseSegDuration(flagTimeout)
		if err != nil {
			return service.Invocation{}, fmt.Errorf("parsing --timeout: %w", err)
		}
	}

	return service.Invocation{
		Targets:  flagTargets,
		Command:  args[0],
		Args:     args[1:],
		Interval: interval,
		Timeout:  timeout,
	}, nil
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("hwdiag",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	inv, err := invocation(cmd, args)
	if err != nil {
		return err
	}

	summary, err := service.Run(ctx, config, inv)
	if err != nil {
		return err
	}

	if flagJSON {
		err = summary.AsJSON(os.Stdout)
	} else {
		err = summary.Render(os.Stdout)
	}
	if err != nil {
		return err
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("diagnostic %s did not complete on: %v", inv.Command, failed)
	}
	return nil
}

func doWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("hwdiag",
		slog.String("cmd", "watch"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	inv, err := invocation(cmd, args)
	if err != nil {
		return err
	}
	return service.Watch(ctx, config, inv)
}

func doPreflight(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	checks := netcheck.Preflight(ctx, flagTargets, flagPort, 4)
	var summary report.Summary
	failed := 0
	for _, c := range checks {
		state := "Reachable"
		switch {
		case !c.Reachable:
			state = "Unreachable"
			failed++
		case time.Now().After(c.NotAfter):
			state = "CertificateExpired"
			failed++
		}
		summary.Rows = append(summary.Rows, report.Row{Target: c.Target, State: state})
		if c.Err != "" {
			slog.WarnContext(ctx, "preflight check failed", "target", c.Target, "error", c.Err)
		} else {
			slog.DebugContext(ctx, "preflight check", "target", c.Target,
				"addr", c.Addr, "subject", c.Subject, "notAfter", c.NotAfter)
		}
	}
	if err := summary.Render(os.Stdout); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d controllers failed preflight", failed, len(checks))
	}
	return nil
}

func initHwdiag(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("HWDIAGCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "hwdiag.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "hwdiag.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		cfg, err := model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d)
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		config = *cfg
	}

	// --verbose has a precedence over config file
	verbose := flagVerbose
	if config.Service.Verbose != nil && *config.Service.Verbose {
		verbose = true
	}

	dst := model.LogStderr
	if config.Service.Log != nil {
		dst = *config.Service.Log
	}
	slog.SetDefault(log.New(dst, verbose))

	slog.Debug("hwdiag run", "configPath", configPath)
	slog.Debug("hwdiag run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
