package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cortexforge/agentflow/internal/bus"
	"github.com/cortexforge/agentflow/internal/executor"
	"github.com/cortexforge/agentflow/internal/onboarding"
	"github.com/cortexforge/agentflow/internal/preflight"
	"github.com/cortexforge/agentflow/internal/workflow"
)

// runOnboarding drives an onboarding.Service to completion, prompting on
// stdin for each stage the service enters and writing the committed
// selections back into run. The needs argument is not consulted; the
// service's own stage sequence decides what is asked.
func runOnboarding(b *bus.Bus, tmpl *workflow.Template, run *workflow.RunIndex, needs preflight.OnboardingNeeds, stdin *bufio.Reader, ex *executor.Executor, dir string) error {
	var controllerInit onboarding.ControllerInitFunc
	if tmpl.Controller != nil {
		controllerInit = func(ctx context.Context, t *workflow.Template) (string, error) {
			res, err := ex.Execute(executor.Request{
				Step:          t.Controller,
				WorkflowID:    run.RunID + ":onboarding",
				WorkingDir:    dir,
				Substitutions: map[string]string{"projectName": run.ProjectName},
				Ctx:           ctx,
			})
			if err != nil {
				return "", err
			}
			return t.Controller.AgentID + ":" + res.SessionID, nil
		}
	}

	svc := onboarding.New(b, tmpl, run.ProjectName, controllerInit)
	if err := svc.Start(); err != nil {
		return err
	}

	for {
		switch svc.Stage() {
		case onboarding.StageProjectName:
			fmt.Print("Project name: ")
			name, err := readLine(stdin)
			if err != nil {
				return err
			}
			if err := svc.SetProjectName(name); err != nil {
				return err
			}

		case onboarding.StageTracks:
			q := tmpl.Tracks
			fmt.Println(q.Question)
			for i, opt := range q.Options {
				fmt.Printf("  %d) %s\n", i+1, optionLabel(opt.Label, opt.ID))
			}
			choice, err := readChoice(stdin, len(q.Options))
			if err != nil {
				return err
			}
			if err := svc.SelectTrack(q.Options[choice].ID); err != nil {
				return err
			}

		case onboarding.StageConditionGroup, onboarding.StageConditionChild:
			g, err := svc.CurrentGroup()
			if err != nil {
				return err
			}
			if err := answerConditionGroup(svc, g, stdin); err != nil {
				return err
			}

		case onboarding.StageLaunching:
			fmt.Println("Initializing controller agent...")

		case onboarding.StageCompleted:
			res := svc.Result()
			run.ProjectName = res.ProjectName
			run.SelectedTrackID = res.TrackID
			for _, c := range res.Conditions {
				run.SelectedConditions[c] = true
			}
			return nil

		case onboarding.StageCancelled:
			return fmt.Errorf("onboarding cancelled")
		}
	}
}

// answerConditionGroup prompts for g, a single choice for a single-select
// group or a comma-separated list for a multi-select one.
func answerConditionGroup(svc *onboarding.Service, g workflow.ConditionGroup, stdin *bufio.Reader) error {
	fmt.Println(g.Question)
	for i, opt := range g.Options {
		fmt.Printf("  %d) %s\n", i+1, optionLabel(opt.Label, opt.ID))
	}

	if !g.MultiSelect {
		choice, err := readChoice(stdin, len(g.Options))
		if err != nil {
			return err
		}
		return svc.SelectCondition(g.Options[choice].ID)
	}

	fmt.Print("Select options (comma-separated numbers, blank for none): ")
	line, err := readLine(stdin)
	if err != nil {
		return err
	}
	for _, tok := range strings.Split(line, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > len(g.Options) {
			continue
		}
		if err := svc.ToggleCondition(g.Options[n-1].ID, true); err != nil {
			return err
		}
	}
	return svc.ConfirmSelections()
}

func optionLabel(label, id string) string {
	if label != "" {
		return label
	}
	return id
}

func readLine(stdin *bufio.Reader) (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func readChoice(stdin *bufio.Reader, n int) (int, error) {
	for {
		fmt.Print("Choice: ")
		line, err := readLine(stdin)
		if err != nil {
			return 0, err
		}
		idx, err := strconv.Atoi(line)
		if err != nil || idx < 1 || idx > n {
			fmt.Printf("enter a number between 1 and %d\n", n)
			continue
		}
		return idx - 1, nil
	}
}
