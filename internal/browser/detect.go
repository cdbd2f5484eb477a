// Package browser locates, launches, and supervises a Chromium-based
// browser with its DevTools endpoint open for cdpctl to attach to.
package browser

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
)

// ErrBrowserNotFound is returned when no Chromium-based binary can be located.
var ErrBrowserNotFound = errors.New("no chromium-based browser found")

// browserPaths returns the candidate executables for the current platform,
// in preference order. Chrome first, then Chromium, then derivatives.
func browserPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"google-chrome",
			"chromium",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"/usr/bin/brave-browser",
			"/usr/bin/microsoft-edge",
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
			"brave-browser",
		}
	default:
		return nil
	}
}

// FindBrowser searches for a Chromium-based binary on the system.
// The CDPCTL_CHROME environment variable wins when set; otherwise the
// platform's common installation paths are tried in order.
// Returns the path to the executable or ErrBrowserNotFound.
func FindBrowser() (string, error) {
	if envPath := os.Getenv("CDPCTL_CHROME"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		// Set but unusable: fail rather than silently picking another browser.
		return "", ErrBrowserNotFound
	}

	for _, path := range browserPaths() {
		found, err := exec.LookPath(path)
		if err == nil {
			return found, nil
		}
	}

	return "", ErrBrowserNotFound
}
