package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Uninstall stops the daemon and removes its systemd unit.
func Uninstall() error {
	logrus.Infof("stopping wsprd")

	err := exec.Command(systemctl, "disable", "--now", filepath.Base(unitPath)).Run()
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w. Are you root?", filepath.Base(unitPath), err)
	}

	logrus.Infof("removing systemd unit")

	// if the file doesn't exist, we don't need to remove it
	_, err = os.Stat(unitPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", unitPath, err)
	}

	err = os.Remove(unitPath)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	return exec.Command(systemctl, "daemon-reload").Run()
}
