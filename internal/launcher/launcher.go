package launcher

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// Launcher opens record URLs in a configured program or the system default
type Launcher struct {
	command string   // configured command, empty for system default
	args    []string // additional arguments placed before the URL
	goos    string
	logger  *slog.Logger

	// start runs a command without waiting for it; lookPath resolves it.
	start    func(name string, args ...string) error
	lookPath func(name string) (string, error)
}

// New creates a Launcher. An empty command uses open/xdg-open/start.
func New(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command:  command,
		args:     args,
		goos:     runtime.GOOS,
		logger:   logger,
		start:    startCommand,
		lookPath: exec.LookPath,
	}
}

func startCommand(name string, args ...string) error {
	return exec.Command(name, args...).Start() // Start async, don't wait
}

// Open hands url to the configured program or the system default handler
func (l *Launcher) Open(url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("nothing to open")
	}
	if l.command != "" {
		return l.openConfigured(url)
	}
	return l.openDefault(url)
}

// openConfigured launches the configured program with the URL last
func (l *Launcher) openConfigured(url string) error {
	args := append([]string{}, l.args...)

	// On macOS, GUI apps are usually not in PATH; reach them with 'open -a'
	if l.goos == "darwin" {
		if _, err := l.lookPath(l.command); err != nil {
			cmdArgs := []string{"-a", l.command}
			if len(args) > 0 {
				cmdArgs = append(cmdArgs, "--args")
				cmdArgs = append(cmdArgs, args...)
			}
			cmdArgs = append(cmdArgs, url)
			l.logger.Info("using macOS 'open -a' to launch app", "app", l.command, "args", cmdArgs)
			return l.start("open", cmdArgs...)
		}
	}

	l.logger.Info("launching", "command", l.command, "args", args, "url", url)
	return l.start(l.command, append(args, url)...)
}

// openDefault opens the URL using the system default handler
func (l *Launcher) openDefault(url string) error {
	l.logger.Info("launching with system default", "os", l.goos, "url", url)

	switch l.goos {
	case "darwin":
		return l.start("open", url)
	case "windows":
		return l.start("cmd", "/c", "start", "", url)
	default:
		// Linux and other Unix-like systems
		return l.start("xdg-open", url)
	}
}
