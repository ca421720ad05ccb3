package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"omtobe/internal/cycle"
	"omtobe/internal/engine"
	"omtobe/internal/engine/auth"
)

func stateCmd() *cobra.Command {
	st := &cobra.Command{Use: "state", Short: "Inspect and evaluate the cycle state"}
	st.AddCommand(stateShowCmd())
	st.AddCommand(stateCheckCmd())
	st.AddCommand(stateEvaluateCmd())
	return st
}

func stateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show day, phase, cooling and lock state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.State(ctx, auth.System, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Day", sum.CurrentDay},
					{"Phase", sum.Phase},
					{"Cycle start", sum.CycleStart},
					{"Next cycle", sum.NextCycleStart},
					{"Cooling", coolingLabel(sum)},
					{"Locked", sum.DecisionLocked},
					{"Baseline", fmt.Sprintf("%.1f ms (n=%d)", sum.HRVBaselineMean, sum.HRVBaselineSamples)},
					{"Reflection due", sum.ReflectionDue},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func coolingLabel(sum engine.StateSummary) string {
	if !sum.CoolingPeriodActive {
		return "no"
	}
	if sum.CoolingPeriodEndsAt != nil {
		return "until " + *sum.CoolingPeriodEndsAt
	}
	return "yes"
}

func stateCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [user-id]",
		Short: "Evaluate the brake gate against the configured sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CheckBrake(ctx, auth.System, userID)
				if err != nil {
					return err
				}
				return printBrake(res)
			})
		},
	}
}

type evaluateFile struct {
	CurrentHRV float64 `json:"current_hrv"`
	Samples    []struct {
		Timestamp time.Time `json:"timestamp"`
		Value     float64   `json:"value"`
	} `json:"samples"`
	Events []struct {
		EventID   string    `json:"event_id"`
		Title     string    `json:"title"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	} `json:"events"`
}

func (f evaluateFile) inputs() cycle.Inputs {
	in := cycle.Inputs{CurrentHRV: f.CurrentHRV}
	for _, s := range f.Samples {
		in.Samples = append(in.Samples, cycle.HRVSample{Timestamp: s.Timestamp.UTC(), Value: s.Value})
	}
	for _, ev := range f.Events {
		in.Events = append(in.Events, cycle.Event{ID: ev.EventID, Title: ev.Title, Start: ev.StartTime.UTC(), End: ev.EndTime.UTC()})
	}
	return in
}

func stateEvaluateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "evaluate [user-id]",
		Short: "Evaluate the brake gate against inputs from a JSON file",
		Long:  `The file holds {"current_hrv": 35, "samples": [{"timestamp", "value"}], "events": [{"event_id", "title", "start_time", "end_time"}]}; "-" reads stdin.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			var raw []byte
			if file == "-" {
				raw, err = io.ReadAll(os.Stdin)
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			var in evaluateFile
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Evaluate(ctx, auth.System, userID, in.inputs())
				if err != nil {
					return err
				}
				return printBrake(res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "inputs JSON file")
	return cmd
}

func printBrake(res engine.BrakeCheck) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	if res.ShouldDisplay {
		fmt.Printf("BRAKE: show the brake screen for %q (day %d, %s)\n", res.EventID, res.CurrentDay, res.Phase)
		return nil
	}
	msg := fmt.Sprintf("No brake (day %d, %s)", res.CurrentDay, res.Phase)
	if res.Reason != "" {
		msg += ": " + res.Reason
	}
	fmt.Println(msg)
	return nil
}

func decideCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "decide <Proceed|Delay> [user-id]",
		Short:     "Answer the brake screen",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{string(cycle.DecisionProceed), string(cycle.DecisionDelay)},
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args[1:])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RecordDecision(ctx, auth.System, userID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s recorded on day %d: %s\n", res.DecisionType, res.Record.Day, res.NextAction)
				if res.RetriggerTime != nil {
					fmt.Println("Brake may show again at", *res.RetriggerTime)
				}
				return nil
			})
		},
	}
}

func reflectCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "reflect <Yes|No|Skip> [user-id]",
		Short:     "Answer the day 7 reflection and start a new cycle",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{string(cycle.ReflectionYes), string(cycle.ReflectionNo), string(cycle.ReflectionSkip)},
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args[1:])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RecordReflection(ctx, auth.System, userID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Reflection %s recorded; new cycle started at %s\n", res.Response, res.State.CycleStart)
				return nil
			})
		},
	}
}

func cycleCmd() *cobra.Command {
	cyc := &cobra.Command{Use: "cycle", Short: "Cycle maintenance"}
	cyc.AddCommand(&cobra.Command{
		Use:   "reset [user-id]",
		Short: "Start a new cycle now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.ResetCycle(ctx, auth.System, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	})
	cyc.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Reset every cycle whose boundary has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SweepCycles(ctx, auth.System)
				if err != nil {
					return err
				}
				fmt.Printf("Reset %d cycle(s)\n", n)
				return nil
			})
		},
	})
	return cyc
}

func historyCmd() *cobra.Command {
	hist := &cobra.Command{Use: "history", Short: "Decision and reflection logs"}
	var limit int
	decisions := &cobra.Command{
		Use:   "decisions [user-id]",
		Short: "Decision log, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.DecisionHistory(ctx, auth.System, userID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Timestamp", "Decision", "Day"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.Timestamp, l.DecisionType, l.Day})
				}
				tw.Render()
				return nil
			})
		},
	}
	reflections := &cobra.Command{
		Use:   "reflections [user-id]",
		Short: "Reflection log, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser(args)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.ReflectionHistory(ctx, auth.System, userID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Timestamp", "Response", "Cycle start"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.Timestamp, l.Response, l.CycleStart})
				}
				tw.Render()
				return nil
			})
		},
	}
	hist.PersistentFlags().IntVar(&limit, "limit", engine.DefaultHistoryLimit, "maximum rows")
	hist.AddCommand(decisions, reflections)
	return hist
}
