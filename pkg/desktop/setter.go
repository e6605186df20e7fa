package desktop

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setter points the OS at a wallpaper file.
type Setter interface {
	Set(path string) error
}

// NewSetter picks the setter for the running platform. Platforms without
// one get a no-op that logs, so the rest of the cycle still runs.
func NewSetter(log *logrus.Entry) Setter {
	switch runtime.GOOS {
	case "darwin":
		return &macSetter{}
	case "linux":
		return &gnomeSetter{}
	default:
		return &noopSetter{log: log, goos: runtime.GOOS}
	}
}

type macSetter struct{}

func (s *macSetter) Set(path string) error {
	script := fmt.Sprintf(`tell application "Finder" to set desktop picture to POSIX file %q`, path)
	cmd := exec.Command("/usr/bin/osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to run osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

type gnomeSetter struct{}

func (s *gnomeSetter) Set(path string) error {
	uri := "file://" + path
	for _, key := range []string{"picture-uri", "picture-uri-dark"} {
		cmd := exec.Command("gsettings", "set", "org.gnome.desktop.background", key, uri)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run gsettings: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

type noopSetter struct {
	log  *logrus.Entry
	goos string
}

func (s *noopSetter) Set(path string) error {
	s.log.WithField("os", s.goos).Warn("setting the desktop background is not supported on this platform")
	return nil
}
