package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/wsprd/pkg/client"
	"github.com/charlie0129/wsprd/pkg/events"
	"github.com/charlie0129/wsprd/pkg/gnss"
	"github.com/charlie0129/wsprd/pkg/transmitter"
)

func NewAbortCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "abort",
		GroupID: gBasic,
		Short:   "Abort the transmission in progress",
		Long:    `Abort the transmission in progress and turn the carrier off. The message stays prepared for the next slot.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := newClient().Abort()
			if err != nil {
				return fmt.Errorf("failed to abort: %v", err)
			}
			logrus.Infof("daemon responded: %s", ret)
			return nil
		},
	}
}

func NewSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "skip",
		GroupID: gBasic,
		Short:   "Skip the next slot",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := newClient().Skip()
			if err != nil {
				return fmt.Errorf("failed to skip: %v", err)
			}
			logrus.Infof("slot skipped, %s", describeSkip(s.NextSlot))
			return nil
		},
	}
}

func NewBeaconCommand() *cobra.Command {
	return newEnableDisableCommand(
		"beacon",
		"scheduled transmissions",
		"Enable or disable transmitting at every slot. Disabling lets a transmission in progress finish; use abort to stop it.",
		func() (string, error) { return newClient().SetEnabled(true) },
		func() (string, error) { return newClient().SetEnabled(false) },
	)
}

func NewMessageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message CALLSIGN [GRID] POWER_DBM",
		GroupID: gBasic,
		Short:   "Set the beacon message",
		Long: `Set the callsign, grid and power sent at every slot.

Leave out the grid to use the locator from the GNSS receiver.`,
		Example: `  wsprd message K1ABC FN42 37
  wsprd message K1ABC 23`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			m := client.Message{Callsign: args[0]}
			if len(args) == 3 {
				m.Grid = args[1]
			}

			power, err := strconv.Atoi(args[len(args)-1])
			if err != nil {
				return fmt.Errorf("invalid power: %v", err)
			}
			m.PowerDbm = power

			ret, err := newClient().SetMessage(m)
			if err != nil {
				return fmt.Errorf("failed to set message: %v", err)
			}
			logrus.Infof("daemon responded: %s", ret)
			return nil
		},
	}

	return cmd
}

func NewFrequencyCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "frequency HZ",
		GroupID: gBasic,
		Short:   "Set the dial frequency",
		Long:    `Set the dial frequency in Hz. The transmitted tones sit at the dial frequency and 1.46 Hz steps above it.`,
		Example: `  wsprd frequency 14097100`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			hz, err := parseFloatArg(args, "frequency")
			if err != nil {
				return err
			}

			ret, err := newClient().SetDialFrequency(hz)
			if err != nil {
				return fmt.Errorf("failed to set frequency: %v", err)
			}
			logrus.Infof("daemon responded: %s", ret)
			return nil
		},
	}
}

func NewGNSSCommand() *cobra.Command {
	var fix gnss.Fix
	var utc string

	cmd := &cobra.Command{
		Use:     "gnss",
		GroupID: gAdvanced,
		Short:   "Push a GNSS fix to the daemon",
		Long: `Push a GNSS fix to the daemon. A fix with UTC time announces the
following second as the time of the next PPS edge.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if utc != "" {
				t, err := time.Parse(time.RFC3339, utc)
				if err != nil {
					return fmt.Errorf("invalid utc time: %v", err)
				}
				fix.UTCTime = t
			}

			ret, err := newClient().PutGNSS(fix)
			if err != nil {
				return fmt.Errorf("failed to push fix: %v", err)
			}
			logrus.Infof("daemon responded: %s", ret)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&fix.HasFix, "fix", true, "Whether the receiver has a position fix")
	f.Float64Var(&fix.Latitude, "lat", 0, "Latitude in degrees")
	f.Float64Var(&fix.Longitude, "lon", 0, "Longitude in degrees")
	f.IntVar(&fix.Satellites, "satellites", 0, "Satellites in use")
	f.StringVar(&utc, "utc", "", "UTC time of the fix (RFC 3339)")

	return cmd
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Follow daemon events",
		Long:    `Print transmitter state changes, skipped slots and calibration lock changes as they happen.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			for ev := range newClient().SubscribeEvents(ctx) {
				cmd.Println(describeEvent(ev))
			}
			return nil
		},
	}
}

func describeEvent(ev events.Event) string {
	now := time.Now().Format(time.TimeOnly)

	switch ev.Name {
	case events.TxState:
		p, err := events.DecodeAs[events.TxStateEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s  transmitter %s -> %s (missed writes: %d)", now, p.From, stateText(transmitter.State(p.To)), p.MissedWrites)
	case events.TxSkipped:
		p, err := events.DecodeAs[events.TxSkippedEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s  slot skipped: %s", now, p.Reason)
	case events.CalibrationLock:
		p, err := events.DecodeAs[events.CalibrationLockEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s  calibration locked: %s (factor %.9f, %+.3f ppm)", now, bool2Text(p.Locked), p.CorrectionFactor, p.FrequencyErrorPPM)
	}

	return fmt.Sprintf("%s  %s %s", now, ev.Name, string(ev.Data))
}
