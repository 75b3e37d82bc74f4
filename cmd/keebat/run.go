package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Cirius1792/split-keeb-battery/internal/device"
	"github.com/Cirius1792/split-keeb-battery/internal/devicefactory"
	"github.com/Cirius1792/split-keeb-battery/internal/monitor"
	"github.com/Cirius1792/split-keeb-battery/internal/notify"
	"github.com/Cirius1792/split-keeb-battery/internal/tray"
	"github.com/Cirius1792/split-keeb-battery/pkg/config"
)

var (
	runDeviceName string
	runDeviceID   string
	runConfigPath string
	runNoTray     bool
)

func init() {
	// Persistent so `keebat autostart install` can carry the same selectors
	// into the registered service
	rootCmd.PersistentFlags().StringVar(&runDeviceName, "device-name", "", "Advertised name of a keyboard to track")
	rootCmd.PersistentFlags().StringVar(&runDeviceID, "device-id", "", "Address of a keyboard to track")
	rootCmd.PersistentFlags().StringVar(&runConfigPath, "config", "", "Config file path (default: "+configPathHint()+")")
	rootCmd.Flags().BoolVar(&runNoTray, "no-tray", false, "Skip the system tray item, log battery status instead")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, logrus.InfoLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(runConfigPath, logger)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Fail fast on an unusable adapter; the flows would otherwise retry a
	// radio that can never answer
	if _, err := devicefactory.DeviceFactory(); err != nil {
		return fmt.Errorf("bluetooth adapter unavailable: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	selectors, err := resolveSelectors(ctx, cfg, logger, runDeviceName, runDeviceID)
	if err != nil {
		return err
	}

	var opts []monitor.Option

	// Quitting from the tray menu unwinds the same way Ctrl+C does
	sink, closeSink := buildSink(cfg, logger, cancel)
	defer closeSink()
	opts = append(opts, monitor.WithSink(sink))

	if notifier, err := notify.New(logger); err != nil {
		logger.WithError(err).Warn("Desktop notifications unavailable")
	} else {
		defer notifier.Close()
		opts = append(opts, monitor.WithNotifier(notifier))
	}

	m, err := monitor.New(cfg, logger, opts...)
	if err != nil {
		return err
	}
	if err := m.Start(ctx, selectors); err != nil {
		return err
	}

	<-ctx.Done()
	m.Stop()
	return nil
}

// loadConfig reads the config file at path, or the default per-user
// location when path is empty. Running without any config file is normal.
func loadConfig(path string, logger *logrus.Logger) (*config.Config, error) {
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			logger.WithError(err).Warn("No user config dir, using built-in defaults")
			return config.Defaults(), nil
		}
		path = defaultPath
	}
	return config.Load(path)
}

// resolveSelectors picks the keyboards to track: explicit flags first, then
// the config file, then the interactive picker.
func resolveSelectors(ctx context.Context, cfg *config.Config, logger *logrus.Logger, nameFlag, idFlag string) ([]device.Selector, error) {
	var selectors []device.Selector

	if name := stripQuotes(nameFlag); name != "" {
		selectors = append(selectors, device.Selector{Name: name})
	}
	if id := stripQuotes(idFlag); id != "" {
		selectors = append(selectors, device.Selector{ID: id})
	}
	if len(selectors) > 0 {
		return selectors, nil
	}

	for _, dev := range cfg.Devices {
		selectors = append(selectors, device.Selector{Name: dev.Name, ID: dev.Address})
	}
	if len(selectors) > 0 {
		return selectors, nil
	}

	return pickDevices(ctx, cfg, logger)
}

// buildSink returns the snapshot sink and its cleanup. Any failure to put
// an item on the tray degrades to status log lines; a desktop is optional.
func buildSink(cfg *config.Config, logger *logrus.Logger, onQuit func()) (monitor.Sink, func()) {
	if runNoTray || !cfg.Tray.Enabled {
		return tray.NewLogSink(logger), func() {}
	}

	t, err := tray.New(cfg, logger, onQuit)
	if err != nil {
		if errors.Is(err, tray.ErrWatcherUnavailable) {
			logger.Warn("No system tray host on this desktop, logging battery status instead")
		} else {
			logger.WithError(err).Warn("System tray unavailable, logging battery status instead")
		}
		return tray.NewLogSink(logger), func() {}
	}
	return t, t.Close
}

// stripQuotes removes one level of surrounding quotes, which desktop launch
// files and shell history tend to leave around device names.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func configPathHint() string {
	if path, err := config.DefaultPath(); err == nil {
		return path
	}
	return "~/.config/keebat/config.yaml"
}
