package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/wsprd/pkg/config"
	daemonutils "github.com/charlie0129/wsprd/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install wsprd as a systemd service",
		GroupID: gInstallation,
		Long: `Install the wsprd daemon as a systemd service.

This makes wsprd run in the background and start on boot. You must run this command as root.

By default, only root is allowed to access the daemon. Use --allow-non-root-access so you don't have to use sudo every time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the wsprd daemon.")
			} else {
				logrus.Info("only root user is allowed to access the wsprd daemon.")
			}

			if err := conf.Validate(); err != nil {
				logrus.Warnf("config is not ready to transmit yet: %v", err)
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup, so do not move it. If it is moved or deleted, run ``wsprd install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access wsprd daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the wsprd systemd service",
		GroupID: gInstallation,
		Long:    `Stop the daemon, which turns the carrier off, and remove the systemd service. The config file is kept.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutils.Uninstall(); err != nil {
				return err
			}
			logrus.Infof("successfully uninstalled wsprd")
			return nil
		},
	}
}
