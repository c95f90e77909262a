// Package main is the entry point for the agentflow CLI.
// agentflow drives a declarative workflow template through pre-flight
// validation, onboarding, and the step-by-step orchestrator loop,
// publishing every transition onto an event bus any number of
// observers (a gateway, a terminal watcher) can attach to.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/control"
	"github.com/cortexforge/agentflow/internal/engine"
	"github.com/cortexforge/agentflow/internal/executor"
	"github.com/cortexforge/agentflow/internal/gateway"
	"github.com/cortexforge/agentflow/internal/input"
	"github.com/cortexforge/agentflow/internal/logging"
	"github.com/cortexforge/agentflow/internal/monitoring"
	"github.com/cortexforge/agentflow/internal/onboarding"
	"github.com/cortexforge/agentflow/internal/preflight"
	"github.com/cortexforge/agentflow/internal/runner"
	"github.com/cortexforge/agentflow/internal/stepindex"
	"github.com/cortexforge/agentflow/internal/workflow"
)

var (
	version     = "0.1.0"
	workingDir  string
	autoMode    bool
	gatewayPort int
	ollamaURL   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "agentflow",
		Short:   "agentflow - orchestrates long-running LLM agent pipelines",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&workingDir, "working-dir", ".", "directory the run executes in")
	rootCmd.PersistentFlags().BoolVar(&autoMode, "auto", false, "start in autonomous (controller-driven) mode")
	rootCmd.PersistentFlags().IntVar(&gatewayPort, "gateway-port", gateway.DefaultPort, "port the event gateway listens on")
	rootCmd.PersistentFlags().StringVar(&ollamaURL, "ollama-url", "", "Ollama endpoint override")

	viper.SetEnvPrefix("AGENTFLOW")
	viper.AutomaticEnv()
	viper.BindPFlag("working-dir", rootCmd.PersistentFlags().Lookup("working-dir"))
	viper.BindPFlag("auto", rootCmd.PersistentFlags().Lookup("auto"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(enginesCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRegistry registers every supported engine binary and returns a
// registry ready for AuthCache-backed resolution.
func buildRegistry() *engine.Registry {
	reg := engine.NewRegistry(nil)
	runDir := filepath.Join(workingDir, ".codemachine", "run")
	agentsDir := filepath.Join(workingDir, ".codemachine", "agents")

	reg.Register(engine.NewClaudeCode(agentsDir))
	reg.Register(engine.NewCodex(runDir))
	reg.Register(engine.NewOllamaAgent(runDir, ollamaURL))
	return reg
}

func runCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <template>",
		Short: "Run a workflow template: pre-flight, onboarding, then the step loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Bootstrap(workingDir)

			tmplPath := args[0]
			tmpl, err := workflow.Load(tmplPath)
			if err != nil {
				return fmt.Errorf("agentflow: %w", err)
			}
			if err := tmpl.Validate(); err != nil {
				return fmt.Errorf("agentflow: template %s: %w", tmplPath, err)
			}

			specPath := os.Getenv(preflight.DefaultSpecEnvVar)
			if specPath == "" {
				specPath = filepath.Join(workingDir, preflight.DefaultSpecPath)
			}
			if err := preflight.CheckSpecification(specPath, tmpl.Specification); err != nil {
				return fmt.Errorf("agentflow: %w", err)
			}

			run := workflow.NewRunIndex()
			run.TemplatePath = tmplPath

			b := bus.NewBusWithConfig(500)
			printEventsToStderr(b)

			var gw *gateway.Gateway
			if gatewayPort > 0 {
				gw = gateway.New(b, gateway.Config{Port: gatewayPort, ReplayHistory: true, HistoryCount: 100})
				if err := gw.Start(); err != nil {
					return fmt.Errorf("agentflow: gateway: %w", err)
				}
				defer gw.Stop()
			}

			reg := buildRegistry()
			mon := monitoring.New(b)
			ex := executor.New(reg, mon, b)

			stdin := bufio.NewReader(os.Stdin)
			needs := preflight.CheckOnboardingNeeds(run, tmpl)
			if err := runOnboarding(b, tmpl, run, needs, stdin, ex, workingDir); err != nil {
				return fmt.Errorf("agentflow: onboarding: %w", err)
			}

			if dryRun {
				enc := yaml.NewEncoder(os.Stdout)
				defer enc.Close()
				return enc.Encode(run)
			}

			idxDir := filepath.Join(workingDir, ".codemachine", "stepindex")
			idx, err := stepindex.Open(idxDir)
			if err != nil {
				return fmt.Errorf("agentflow: step index: %w", err)
			}

			ctrl := control.New()
			r := runner.New(tmpl, run, idx, b, ctrl, ex, mon, reg)
			r.WorkflowID = run.RunID
			r.WorkingDir = workingDir
			r.AgentsDir = filepath.Join(workingDir, ".codemachine", "agents")
			r.InitialAutoMode = autoMode

			r.UserProvider = &input.UserProvider{
				Source:       &stdinUISource{reader: stdin},
				OnModeChange: func(on bool) { autoMode = on },
			}
			if tmpl.Controller != nil {
				r.ControllerProvider = &input.ControllerProvider{
					AgentID: tmpl.Controller.AgentID,
					Run:     controllerRunFunc(ex, tmpl.Controller, run, workingDir),
				}
			} else {
				r.ControllerProvider = r.UserProvider
			}
			auxRun := auxiliaryAgentRunFunc(ex, tmpl, run, workingDir)
			r.TriggerRun = auxRun
			r.FallbackRun = auxRun

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			watchSignals(ctrl, cancel)

			return r.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run pre-flight and onboarding only, print the resolved run index")
	return cmd
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard <template>",
		Short: "Run onboarding standalone and print the resulting run index as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Bootstrap(workingDir)

			tmpl, err := workflow.Load(args[0])
			if err != nil {
				return fmt.Errorf("agentflow: %w", err)
			}

			run := workflow.NewRunIndex()
			run.TemplatePath = args[0]
			b := bus.NewBus()
			needs := preflight.CheckOnboardingNeeds(run, tmpl)

			reg := buildRegistry()
			mon := monitoring.New(b)
			ex := executor.New(reg, mon, b)

			stdin := bufio.NewReader(os.Stdin)
			if err := runOnboarding(b, tmpl, run, needs, stdin, ex, workingDir); err != nil {
				return fmt.Errorf("agentflow: onboarding: %w", err)
			}

			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(run)
		},
	}
}

func enginesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List registered engines with cached authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := buildRegistry()
			if refresh {
				reg.AuthCache().InvalidateAll()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			for _, id := range reg.IDs() {
				eng, _ := reg.Get(id)
				authenticated, err := reg.AuthCache().IsAuthenticated(ctx, eng)
				status := "authenticated"
				if err != nil {
					status = fmt.Sprintf("error: %v", err)
				} else if !authenticated {
					status = "not authenticated"
				}
				fmt.Printf("%-14s %-20s %s\n", eng.Metadata().ID, eng.Metadata().Name, status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached authentication results and re-probe")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [url]",
		Short: "Attach to a running workflow's event gateway and print a live feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("ws://127.0.0.1:%d%s", gatewayPort, gateway.WebSocketEndpoint)
			if len(args) == 1 {
				url = args[0]
			}
			return watchFeed(url)
		},
	}
}

// controllerRunFunc closes over the Step Executor so the onboarding and
// input packages never import it directly, matching the ControllerRunFunc
// contract the Controller Provider expects.
func controllerRunFunc(ex *executor.Executor, step *workflow.Step, run *workflow.RunIndex, dir string) input.ControllerRunFunc {
	var sessionID string
	var monitoringID int

	return func(ctx context.Context, stepOutput string) (string, error) {
		res, err := ex.Execute(executor.Request{
			Step:               step,
			WorkflowID:         run.RunID,
			WorkingDir:         dir,
			Substitutions:      map[string]string{"projectName": run.ProjectName},
			SelectedConditions: run.SelectedConditions,
			ResumeMonitoringID: monitoringID,
			ResumeSessionID:    sessionID,
			ResumePrompt:       stepOutput,
			Ctx:                ctx,
		})
		if err != nil {
			return "", err
		}
		sessionID = res.SessionID
		monitoringID = res.MonitoringID
		return res.Output, nil
	}
}

// auxiliaryAgentRunFunc resolves an agent id against the template's own
// step list and runs it inline against dir, once, with no session to
// resume. It backs both Trigger and Fallback behaviors, which share the
// same "load an auxiliary agent from configuration and execute it
// inline against the same working directory" contract.
func auxiliaryAgentRunFunc(ex *executor.Executor, tmpl *workflow.Template, run *workflow.RunIndex, dir string) func(ctx context.Context, agentID string, parentStep *workflow.Step, parentIndex int) error {
	return func(ctx context.Context, agentID string, parentStep *workflow.Step, parentIndex int) error {
		step, ok := findStepByAgentID(tmpl, agentID)
		if !ok {
			return fmt.Errorf("agentflow: auxiliary agent %q not found in template", agentID)
		}
		_, err := ex.Execute(executor.Request{
			Step:               step,
			StepIndex:          parentIndex,
			WorkflowID:         run.RunID,
			WorkingDir:         dir,
			AgentsDir:          filepath.Join(dir, ".codemachine", "agents"),
			Substitutions:      map[string]string{"projectName": run.ProjectName},
			SelectedConditions: run.SelectedConditions,
			Ctx:                ctx,
		})
		return err
	}
}

// findStepByAgentID looks up a module step's own definition (prompt
// paths, engine, model) by agent id, for auxiliary (trigger/fallback)
// agents that are declared as ordinary steps elsewhere in the template.
func findStepByAgentID(tmpl *workflow.Template, agentID string) (*workflow.Step, bool) {
	for i := range tmpl.Steps {
		s := &tmpl.Steps[i]
		if s.Kind == workflow.StepKindModule && s.AgentID == agentID {
			return s, true
		}
	}
	return nil, false
}

// watchSignals arranges for the first SIGINT/SIGTERM to request a
// graceful stop through the control bus (cancelling the current step);
// a second signal cancels the run context and exits the process.
func watchSignals(ctrl *control.Bus, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		ctrl.SendStop()
		<-sigCh
		cancel()
		os.Exit(130)
	}()
}

// stdinUISource reads one line of operator input per Receive call.
type stdinUISource struct {
	reader *bufio.Reader
}

func (s *stdinUISource) Receive(ctx context.Context) (string, error) {
	fmt.Print("> ")
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// printEventsToStderr logs a terse one-line summary of every event to
// stderr, leaving stdout free for command output (dry-run YAML, onboard
// YAML, etc).
func printEventsToStderr(b *bus.Bus) {
	b.SubscribeAll(func(e bus.Event) {
		fmt.Fprintf(os.Stderr, "[%s] %s agent=%s step=%d %s\n", e.Timestamp.Format(time.Kitchen), e.Type, e.AgentID, e.StepIndex, e.Reason)
	})
}
