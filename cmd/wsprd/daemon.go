package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/wsprd/pkg/daemon"
	"github.com/charlie0129/wsprd/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the daemon.
	alwaysAllowNonRootAccess = false
	// simulate runs without SPI or GPIO hardware.
	simulate = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run wsprd daemon in the foreground",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version":  version.Version,
				"commit":   version.GitCommit,
				"simulate": simulate,
			}).Info("wsprd daemon starting")
			return daemon.Run(configPath, unixSocketPath, alwaysAllowNonRootAccess, simulate)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.BoolVar(&simulate, "simulate", false,
		"Mock the FPGA and PPS input, for running without hardware.")

	return cmd
}
