package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlie0129/wsprd/pkg/nco"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

func NewEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "encode CALLSIGN GRID POWER_DBM",
		GroupID: gTools,
		Short:   "Print the channel symbols of a message",
		Example: `  wsprd encode K1ABC FN42 37`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			power, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid power: %v", err)
			}

			symbols, err := wspr.Encode(args[0], args[1], power)
			if err != nil {
				return err
			}

			cmd.Println(formatSymbols(symbols))
			if !wspr.StandardPower(power) {
				cmd.PrintErrln("warning: not a standard WSPR power level")
			}
			return nil
		},
	}
}

// formatSymbols prints the symbols as rows of 32 digits.
func formatSymbols(s wspr.Symbols) string {
	var b strings.Builder
	for i, v := range s {
		if i > 0 && i%32 == 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('0' + v)
	}
	return b.String()
}

func NewTuningWordCommand() *cobra.Command {
	var band string
	var factor float64

	cmd := &cobra.Command{
		Use:     "tuning-word [HZ]",
		GroupID: gTools,
		Short:   "Print NCO tuning words for a dial frequency",
		Long: `Print the tuning words of the four WSPR tones for a dial frequency, or
for the conventional dial frequency of --band plus 1500 Hz.`,
		Example: `  wsprd tuning-word 14097100
  wsprd tuning-word --band 40m --factor 1.0000005`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hz float64
			switch {
			case len(args) == 1:
				v, err := parseFloatArg(args, "frequency")
				if err != nil {
					return err
				}
				hz = v
			case band != "":
				b, err := nco.BandByName(band)
				if err != nil {
					return err
				}
				hz = float64(b.DialHz) + (nco.AudioOffsetMinHz+nco.AudioOffsetMaxHz)/2
			default:
				return fmt.Errorf("give a frequency or --band")
			}

			if hz <= 0 || hz+3*nco.ToneSpacingHz >= nco.MaxFrequencyHz(factor) {
				return fmt.Errorf("%.0f Hz is out of the NCO range", hz)
			}

			cmd.Printf("Dial frequency: %s, correction factor %.9f\n", mhz(hz), factor)
			for i, w := range nco.ToneWords(hz, factor) {
				cmd.Printf("  tone %d: %.4f Hz  word %10d (0x%08X)\n", i, nco.ToneFrequency(hz, i), w, w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&band, "band", "", "Use the WSPR dial frequency of a band, e.g. 20m")
	cmd.Flags().Float64Var(&factor, "factor", 1.0, "Oscillator correction factor")

	cmd.AddCommand(&cobra.Command{
		Use:   "bands",
		Short: "List WSPR bands",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, b := range nco.Bands {
				cmd.Printf("%-5s %s\n", b.Name, mhz(float64(b.DialHz)))
			}
		},
	})

	return cmd
}
