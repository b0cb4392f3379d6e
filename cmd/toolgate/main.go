// Package main is the CLI entry point for toolgate — a guarded tool
// invocation layer for autonomous agents.
//
// Every tool call the demo agent plans is forced through a single choke
// point that checks a fixed policy (root containment for file reads,
// localhost-only egress, closed tool allowlist) and records the
// decision in a hash-chained, tamper-evident audit log before any tool
// side effect can occur.
//
// Architecture overview:
//
//	planner --> guard.Invoker --> policy.Check --> audit.Append --> tool
//	                                   |               |
//	                                BLOCK?         fail-closed:
//	                             tool never runs   no record, no effect
//
// CLI commands (cobra):
//
//	toolgate run       - Run the demo agent (baseline or guarded)
//	toolgate audit     - Query, verify, export, or follow the audit log
//	toolgate watch     - Serve the live monitor dashboard
//	toolgate config    - View or initialize the configuration
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/audit"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/dashboard"
	"github.com/toolgate/toolgate/internal/guard"
	"github.com/toolgate/toolgate/internal/planner"
	"github.com/toolgate/toolgate/internal/policy"
	"github.com/toolgate/toolgate/internal/tools"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// defaultConfigDir returns ~/.toolgate/ where all runtime state lives:
// config.yaml, data/, audit/, and egress.log.
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolgate"
	}
	return filepath.Join(home, ".toolgate")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ============================================================================
// Root command
// ============================================================================

// configDir is the global flag for the toolgate config/state directory.
var configDir string

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "toolgate — guarded tool invocation with a tamper-evident audit trail",
	Long: `toolgate mediates every tool call an agent makes: a fixed policy decides
ALLOW or BLOCK per call, and every decision is appended to a hash-chained
audit log before any tool side effect can occur. Tampering with the log —
editing, reordering, deleting, or inserting entries — is detectable with
'toolgate audit verify'.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configDir,
		"config-dir",
		defaultConfigDir(),
		"Path to toolgate config and state directory",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads config.yaml from the config directory.
func loadConfig() (*config.Config, error) {
	return config.Load(filepath.Join(configDir, "config.yaml"))
}

// buildRegistry registers the built-in tools against the configured
// paths. The registry is an external collaborator from the guard's
// point of view: the choke point only consumes the name/invoke shape.
func buildRegistry(cfg *config.Config) *guard.Registry {
	reg := guard.NewRegistry()
	reg.Register(tools.NewReadFile(cfg.DataRoot))
	reg.Register(tools.NewSummarize())
	reg.Register(tools.NewSendTo(cfg.EgressLog))
	return reg
}

// ============================================================================
// toolgate run — Run the demo agent
// ============================================================================

var (
	runMode   string
	runInput  string
	runPrompt string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo agent in baseline (unguarded) or guarded mode",
	Long: `Runs the deterministic demo agent. The prompt decides the plan: a prompt
containing "exfiltrate" plans a read -> summarize -> send-to-attacker
sequence; anything else plans a benign read -> summarize.

In guarded mode every step passes through the policy/audit choke point; in
baseline mode tools are dispatched directly, to show what the guard
prevents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runMode != "baseline" && runMode != "guarded" {
			return fmt.Errorf("invalid --mode %q (use baseline or guarded)", runMode)
		}

		prompt := runPrompt
		if runInput != "" {
			data, err := os.ReadFile(runInput)
			if err != nil {
				return fmt.Errorf("reading input file: %w", err)
			}
			prompt = strings.TrimSpace(string(data))
		}
		if prompt == "" {
			return fmt.Errorf("provide a prompt via --prompt or --input")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
			return fmt.Errorf("creating data root: %w", err)
		}

		reg := buildRegistry(cfg)

		var runner *planner.Runner
		var log *audit.Log
		if runMode == "guarded" {
			engine, err := policy.New(policy.Config{DataRoot: cfg.DataRoot})
			if err != nil {
				return err
			}
			log, err = audit.Open(cfg.AuditDir)
			if err != nil {
				return err
			}
			defer log.Close()
			runner = planner.NewRunner(guard.NewInvoker(engine, log, reg))
		} else {
			runner = planner.NewRunner(guard.NewDirectInvoker(reg))
		}

		transcript := runner.Run(prompt)

		for i, step := range transcript.Steps {
			fmt.Printf("step %d: %-10s %-8s", i+1, step.Step.Tool, step.Outcome)
			if step.Error != "" {
				fmt.Printf("  %s", step.Error)
			}
			fmt.Println()
		}
		fmt.Println(transcript.Output)

		if log != nil {
			result, err := log.VerifyChain()
			if err != nil {
				return fmt.Errorf("verifying chain: %w", err)
			}
			fmt.Printf("audit: %s  chain valid: %v (%d entries)\n",
				log.Path(), result.Valid, result.EntriesChecked)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "guarded", "Run mode: baseline or guarded")
	runCmd.Flags().StringVar(&runInput, "input", "", "Read the prompt from a file")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "Prompt for the demo planner")
}

// ============================================================================
// toolgate audit — Query and verify the audit log
// ============================================================================

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query, verify, export, or follow the audit log",
}

var (
	tailLimit    int
	tailDecision string
	tailTool     string
	tailSince    string
)

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAuditLog()
		if err != nil {
			return err
		}
		defer log.Close()

		entries, err := log.Query(audit.QueryParams{
			Decision: tailDecision,
			Tool:     tailTool,
			Since:    tailSince,
			Limit:    tailLimit,
		})
		if err != nil {
			return err
		}

		// Query returns newest first; print oldest first like a log.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			fmt.Printf("%6d  %-30s  %-10s  %-5s  %s\n", e.Index, e.Timestamp, e.Tool, e.Decision, e.Reason)
		}
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := audit.VerifyFile(filepath.Join(cfg.AuditDir, audit.LogFileName))
		if err != nil {
			return err
		}
		if result.Valid {
			fmt.Printf("chain valid: %d entries checked\n", result.EntriesChecked)
			return nil
		}
		fmt.Printf("CHAIN BROKEN at entry %d: %s\n", result.BrokenAt, result.Detail)
		if result.ExpectedHash != "" {
			fmt.Printf("  expected: %s\n  actual:   %s\n", result.ExpectedHash, result.ActualHash)
		}
		// Non-fatal by design: the exit status still signals the break
		// so scripts can quarantine the log.
		os.Exit(1)
		return nil
	},
}

var exportFormat string

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit log (jsonl, json, or csv)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAuditLog()
		if err != nil {
			return err
		}
		defer log.Close()
		return log.Export(os.Stdout, exportFormat)
	},
}

var auditFollowCmd = &cobra.Command{
	Use:   "follow",
	Short: "Stream new audit entries as they are appended (like tail -f)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := openAuditLog()
		if err != nil {
			return err
		}
		defer log.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = log.Follow(ctx, func(e audit.Entry) {
			data, _ := json.Marshal(e)
			fmt.Println(string(data))
		})
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func openAuditLog() (*audit.Log, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return audit.Open(cfg.AuditDir)
}

func init() {
	auditTailCmd.Flags().IntVar(&tailLimit, "limit", 20, "Maximum entries to show")
	auditTailCmd.Flags().StringVar(&tailDecision, "decision", "", "Filter by decision (ALLOW or BLOCK)")
	auditTailCmd.Flags().StringVar(&tailTool, "tool", "", "Filter by tool name glob (e.g. 'read_*')")
	auditTailCmd.Flags().StringVar(&tailSince, "since", "", "Only entries newer than a duration (e.g. 1h) or timestamp")
	auditExportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Export format: jsonl, json, or csv")

	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditFollowCmd)
}

// ============================================================================
// toolgate watch — Live monitor dashboard
// ============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Serve the live audit monitor dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Dashboard.Enabled {
			return fmt.Errorf("dashboard is disabled in config.yaml")
		}

		log, err := audit.Open(cfg.AuditDir)
		if err != nil {
			return err
		}
		defer log.Close()

		reg := buildRegistry(cfg)
		monitor := dashboard.New(log, reg.Names())

		// Mirror on-disk appends from other processes (e.g. a concurrent
		// `toolgate run`) into the live feed.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			if err := log.Follow(ctx, monitor.Publish); err != nil && err != context.Canceled {
				slog.Error("audit follow stopped", "error", err)
			}
		}()

		addr := fmt.Sprintf("%s:%d", cfg.Dashboard.Host, cfg.Dashboard.Port)
		srv := &http.Server{Addr: addr, Handler: monitor.Handler()}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()

		slog.Info("monitor listening", "addr", "http://"+addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

// ============================================================================
// toolgate config — View or initialize configuration
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or initialize the toolgate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(configDir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
