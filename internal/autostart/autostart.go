// Package autostart registers the monitor as a login service: a systemd
// user unit on Linux, a launchd agent on macOS. The selector flags the
// user invoked with are baked into the service command line so the
// registered instance watches the same keyboards.
package autostart

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const (
	serviceName  = "keebat"
	launchdLabel = "com.cirius1792.keebat"
)

// Config describes the service to register.
type Config struct {
	BinaryPath string
	Args       []string // flags carried into the service command line
}

// State reports whether the service is registered and alive.
type State struct {
	Installed bool
	Running   bool
	Path      string // unit or plist location for this platform
}

// DefaultConfig resolves the current executable and carries the given
// flags into the service definition.
func DefaultConfig(args []string) Config {
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/" + serviceName
	}
	return Config{BinaryPath: binary, Args: args}
}

// Validate checks that the binary the service would point at exists and is
// executable.
func (c *Config) Validate() error {
	if c.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	info, err := os.Stat(c.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", c.BinaryPath, err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary %q is not executable", c.BinaryPath)
	}
	return nil
}

// Install registers the service on the current platform.
func Install(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch runtime.GOOS {
	case "linux":
		return installSystemd(cfg)
	case "darwin":
		return installLaunchd(cfg)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Uninstall removes the service registration on the current platform.
func Uninstall() error {
	switch runtime.GOOS {
	case "linux":
		return uninstallSystemd()
	case "darwin":
		return uninstallLaunchd()
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Status reports the registration state on the current platform.
func Status() (*State, error) {
	switch runtime.GOOS {
	case "linux":
		return statusSystemd()
	case "darwin":
		return statusLaunchd()
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// --- systemd user unit ---

const systemdTemplate = `[Unit]
Description=Split keyboard battery monitor
After=graphical-session.target bluetooth.target

[Service]
Type=simple
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

// RenderSystemdUnit renders the user unit file content.
func RenderSystemdUnit(cfg Config) (string, error) {
	parts := make([]string, 0, len(cfg.Args)+1)
	parts = append(parts, quoteSystemdArg(cfg.BinaryPath))
	for _, arg := range cfg.Args {
		parts = append(parts, quoteSystemdArg(arg))
	}

	tmpl, err := template.New("systemd").Parse(systemdTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct{ ExecStart string }{ExecStart: strings.Join(parts, " ")})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// quoteSystemdArg makes an argument safe for an ExecStart= line: double
// quotes around anything with spaces or quote characters, and $ doubled so
// systemd does not expand it.
func quoteSystemdArg(s string) string {
	s = strings.ReplaceAll(s, "$", "$$")
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func systemdUnitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", serviceName+".service"), nil
}

func installSystemd(cfg Config) error {
	content, err := RenderSystemdUnit(cfg)
	if err != nil {
		return err
	}
	unitPath, err := systemdUnitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("create systemd user dir: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", serviceName + ".service"},
	}
	for _, args := range cmds {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %s: %w", strings.Join(args, " "), out, err)
		}
	}
	return nil
}

func uninstallSystemd() error {
	// best effort: the unit may already be gone or never enabled
	exec.Command("systemctl", "--user", "disable", serviceName+".service").Run()

	unitPath, err := systemdUnitPath()
	if err != nil {
		return err
	}
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	exec.Command("systemctl", "--user", "daemon-reload").Run()
	return nil
}

func statusSystemd() (*State, error) {
	unitPath, err := systemdUnitPath()
	if err != nil {
		return nil, err
	}
	st := &State{Path: unitPath}
	if _, err := os.Stat(unitPath); err == nil {
		st.Installed = true
	}
	// is-active exits non-zero for inactive units; only the output matters
	out, _ := exec.Command("systemctl", "--user", "is-active", serviceName).Output()
	st.Running = strings.TrimSpace(string(out)) == "active"
	return st, nil
}

// --- launchd agent ---

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
    <key>ProcessType</key>
    <string>Interactive</string>
</dict>
</plist>
`

// RenderLaunchdPlist renders the launch agent content. KeepAlive stays off
// so quitting from the tray menu sticks until the next login.
func RenderLaunchdPlist(cfg Config) (string, error) {
	args := make([]string, 0, len(cfg.Args)+1)
	args = append(args, xmlEscape(cfg.BinaryPath))
	for _, arg := range cfg.Args {
		args = append(args, xmlEscape(arg))
	}

	tmpl, err := template.New("launchd").Parse(launchdTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Label string
		Args  []string
	}{Label: launchdLabel, Args: args})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

func launchdPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
}

func installLaunchd(cfg Config) error {
	content, err := RenderLaunchdPlist(cfg)
	if err != nil {
		return err
	}
	plistPath, err := launchdPlistPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(plistPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	if out, err := exec.Command("launchctl", "load", plistPath).CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl load: %s: %w", out, err)
	}
	return nil
}

func uninstallLaunchd() error {
	plistPath, err := launchdPlistPath()
	if err != nil {
		return err
	}
	exec.Command("launchctl", "unload", plistPath).Run() // best effort
	if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

func statusLaunchd() (*State, error) {
	plistPath, err := launchdPlistPath()
	if err != nil {
		return nil, err
	}
	st := &State{Path: plistPath}
	if _, err := os.Stat(plistPath); err == nil {
		st.Installed = true
	}
	if err := exec.Command("launchctl", "list", launchdLabel).Run(); err == nil {
		st.Running = true
	}
	return st, nil
}
