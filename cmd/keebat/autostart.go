package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cirius1792/split-keeb-battery/internal/autostart"
	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage the login autostart registration",
	Long: `Register or remove the monitor as a login service: a systemd user
unit on Linux, a launchd agent on macOS.

The --device-name / --device-id flags given to install are baked into the
service command line, so the registered instance tracks the same keyboards:

  keebat autostart install --device-name "Corne"`,
}

var autostartInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Register keebat to start at login",
	Args:  cobra.NoArgs,
	RunE:  runAutostartInstall,
}

var autostartUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the login registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := autostart.Uninstall(); err != nil {
			return err
		}
		fmt.Println("Autostart disabled")
		return nil
	},
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the login registration state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		st, err := autostart.Status()
		if err != nil {
			return err
		}
		if !st.Installed {
			fmt.Println("Autostart is not installed")
			return nil
		}
		running := "no"
		if st.Running {
			running = "yes"
		}
		fmt.Printf("Installed: yes (%s)\nRunning:   %s\n", st.Path, running)
		return nil
	},
}

func init() {
	autostartCmd.AddCommand(autostartInstallCmd)
	autostartCmd.AddCommand(autostartUninstallCmd)
	autostartCmd.AddCommand(autostartStatusCmd)
}

func runAutostartInstall(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	svcArgs := autostartArgs(runDeviceName, runDeviceID, runConfigPath)

	// Without pinned selectors the registered service would come up with
	// nothing to track; the config file is the only other source
	if runDeviceName == "" && runDeviceID == "" {
		cfg, err := loadConfig(runConfigPath, logger)
		if err != nil {
			return err
		}
		if len(cfg.Devices) == 0 {
			return fmt.Errorf("nothing to track at login: %w", monitor.ErrNoDeviceSelected)
		}
	}

	cmd.SilenceUsage = true

	if err := autostart.Install(autostart.DefaultConfig(svcArgs)); err != nil {
		return err
	}

	if st, err := autostart.Status(); err == nil {
		fmt.Printf("Autostart enabled (%s)\n", st.Path)
	} else {
		fmt.Println("Autostart enabled")
	}
	return nil
}

// autostartArgs renders the flags the registered service will start with.
func autostartArgs(name, id, configPath string) []string {
	var svcArgs []string
	if name = stripQuotes(name); name != "" {
		svcArgs = append(svcArgs, "--device-name", name)
	}
	if id = stripQuotes(id); id != "" {
		svcArgs = append(svcArgs, "--device-id", id)
	}
	if configPath != "" {
		svcArgs = append(svcArgs, "--config", configPath)
	}
	return svcArgs
}
