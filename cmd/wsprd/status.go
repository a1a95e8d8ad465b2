package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/wsprd/pkg/clock"
	"github.com/charlie0129/wsprd/pkg/transmitter"
	"github.com/charlie0129/wsprd/pkg/types"
)

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the beacon",
		Long:    `Get transmitter, calibration and GNSS status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newClient().GetStatus()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, st *types.Status) {
	tx := st.Transmitter

	cmd.Println(bold("Beacon:"))
	cmd.Println("  Enabled: " + bool2Text(st.Enabled))
	cmd.Printf("  Mode: %s\n", st.TxMode)
	if st.SchedulerRunning && !st.NextSlot.IsZero() {
		cmd.Printf("  Next slot: %s (in %s)\n", st.NextSlot.Local().Format(time.DateTime), time.Until(st.NextSlot).Round(time.Second))
	}
	cmd.Printf("  Completed in the last hour: %d\n", st.CompletedLastHour)
	cmd.Println()

	cmd.Println(bold("Transmitter:"))
	cmd.Printf("  State: %s\n", stateText(tx.State))
	if tx.Callsign != "" {
		cmd.Printf("  Message: %s %s %d dBm\n", tx.Callsign, tx.Grid, tx.PowerDbm)
		cmd.Printf("  Dial frequency: %s\n", mhz(tx.DialFrequencyHz))
	}
	if tx.State == transmitter.StateTransmitting {
		cmd.Printf("  Symbol: %d/%d\n", tx.SymbolIndex, tx.TotalSymbols)
	}
	if tx.Writes > 0 {
		cmd.Printf("  Missed writes: %d\n", tx.MissedWrites)
		cmd.Printf("  Worst lateness: %s\n", clock.ToDuration(tx.MaxLatenessPs))
	}
	cmd.Println()

	cal := st.Calibration
	cmd.Println(bold("Calibration:"))
	cmd.Println("  Locked: " + bool2Text(cal.IsLocked))
	cmd.Printf("  Correction factor: %.9f\n", cal.CorrectionFactor)
	cmd.Printf("  Clock error: %+.3f ppm\n", cal.FrequencyErrorPPM)
	cmd.Printf("  Samples: %d accepted, %d rejected, %d dropped\n", cal.AcceptedSamples, cal.RejectedSamples, cal.DroppedEdges)
	if cal.LastRejectReason != "" {
		cmd.Printf("  Last rejection: %s\n", cal.LastRejectReason)
	}
	cmd.Printf("  PPS edges: %d\n", st.PPSEdges)
	cmd.Println()

	cmd.Println(bold("GNSS:"))
	cmd.Println("  Fix: " + bool2Text(st.GNSS.HasFix))
	if st.GNSS.HasFix {
		cmd.Printf("  Position: %.5f, %.5f (%d satellites)\n", st.GNSS.Latitude, st.GNSS.Longitude, st.GNSS.Satellites)
	}
	if st.Grid != "" {
		cmd.Printf("  Grid: %s\n", st.Grid)
	} else {
		cmd.Printf("  Grid: %s\n", color.RedString(st.GridError))
	}
}

func stateText(s transmitter.State) string {
	switch s {
	case transmitter.StateTransmitting:
		return color.New(color.Bold, color.FgRed).Sprint(s)
	case transmitter.StateDone:
		return color.GreenString(string(s))
	default:
		return string(s)
	}
}

func NewHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "history",
		GroupID: gBasic,
		Short:   "List recent transmissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := newClient().GetHistory()
			if err != nil {
				return err
			}

			if len(records) == 0 {
				cmd.Println("No transmissions yet.")
				return nil
			}

			for _, r := range records {
				result := color.GreenString(r.Result)
				if r.Result != "completed" {
					result = color.YellowString(r.Result)
				}
				cmd.Printf("%s  %-9s  %s %s %d dBm  %s  missed=%d late=%dµs\n",
					r.StartedAt.Local().Format(time.DateTime), result,
					r.Callsign, r.Grid, r.PowerDbm, mhz(r.DialFrequencyHz),
					r.MissedWrites, r.MaxLatenessUs)
			}
			return nil
		},
	}
}

func NewMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "metrics",
		GroupID: gAdvanced,
		Short:   "Print the daemon's Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newClient().GetMetrics()
			if err != nil {
				return err
			}
			cmd.Print(m)
			return nil
		},
	}
}

func describeSkip(next time.Time) string {
	return fmt.Sprintf("next slot is %s", next.Local().Format(time.DateTime))
}
