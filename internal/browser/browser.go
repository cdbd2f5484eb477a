package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Browser represents a running browser instance with its DevTools endpoint open.
type Browser struct {
	cmd      *exec.Cmd
	port     int
	dataDir  string
	ownsData bool // true if we created the temp data dir
}

// ErrBrowserClosed is returned when operating on a closed browser.
var ErrBrowserClosed = errors.New("browser is closed")

// ErrNoPageTarget is returned when no page target is available.
var ErrNoPageTarget = errors.New("no page target found")

// ErrStartTimeout is returned when the browser fails to start in time.
var ErrStartTimeout = errors.New("browser start timeout")

// activePortFile is written by the browser into its profile directory
// once the DevTools server is listening.
const activePortFile = "DevToolsActivePort"

// startTimeout bounds how long Start waits for the DevTools endpoint.
const startTimeout = 30 * time.Second

// Start launches a new browser with the DevTools endpoint enabled.
// It waits for the endpoint to become available before returning.
func Start(opts LaunchOptions) (*Browser, error) {
	binPath, err := FindBrowser()
	if err != nil {
		return nil, err
	}

	return StartWithBinary(binPath, opts)
}

// StartWithBinary launches the browser using the specified binary path.
func StartWithBinary(binPath string, opts LaunchOptions) (*Browser, error) {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	cmd, dataDir, err := spawnProcess(binPath, opts)
	if err != nil {
		return nil, err
	}

	b := &Browser{
		cmd:      cmd,
		port:     port,
		dataDir:  dataDir,
		ownsData: opts.UserDataDir == "", // we created temp dir if UserDataDir was empty
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	if err := b.waitForEndpoint(ctx); err != nil {
		b.Close()
		return nil, err
	}

	return b, nil
}

// waitForEndpoint blocks until the DevTools endpoint answers a version
// probe or the context expires. The browser announces readiness by
// writing DevToolsActivePort into its profile directory, so when we own
// the profile we watch for that file and probe on each change. A slow
// ticker covers shared profiles and missed filesystem events.
func (b *Browser) waitForEndpoint(ctx context.Context) error {
	var fileEvents chan fsnotify.Event
	if b.dataDir != "" {
		if watcher, err := fsnotify.NewWatcher(); err == nil {
			if watcher.Add(b.dataDir) == nil {
				defer watcher.Close()
				fileEvents = watcher.Events
			} else {
				watcher.Close()
			}
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrStartTimeout
		case evt := <-fileEvents:
			if filepath.Base(evt.Name) != activePortFile {
				continue
			}
			if b.endpointUp(ctx) {
				return nil
			}
		case <-ticker.C:
			if b.endpointUp(ctx) {
				return nil
			}
		}
	}
}

func (b *Browser) endpointUp(ctx context.Context) bool {
	_, err := FetchVersion(ctx, "127.0.0.1", b.port)
	return err == nil
}

// Port returns the DevTools debugging port.
func (b *Browser) Port() int {
	return b.port
}

// PID returns the browser process ID.
func (b *Browser) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// DataDir returns the profile directory in use, or empty when the
// browser runs on the user's default profile.
func (b *Browser) DataDir() string {
	return b.dataDir
}

// Targets fetches the list of available debug targets.
func (b *Browser) Targets(ctx context.Context) ([]Target, error) {
	return FetchTargets(ctx, "127.0.0.1", b.port)
}

// PageTarget returns the first page-type target.
func (b *Browser) PageTarget(ctx context.Context) (*Target, error) {
	targets, err := b.Targets(ctx)
	if err != nil {
		return nil, err
	}

	target := FindPageTarget(targets)
	if target == nil {
		return nil, ErrNoPageTarget
	}

	return target, nil
}

// Version fetches the browser version information.
func (b *Browser) Version(ctx context.Context) (*VersionInfo, error) {
	return FetchVersion(ctx, "127.0.0.1", b.port)
}

// Close terminates the browser process and cleans up resources.
// It asks the process to exit and escalates to a hard kill if it has
// not gone away after a grace period.
func (b *Browser) Close() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}

	waited := make(chan error, 1)
	go func() { waited <- b.cmd.Wait() }()

	if err := b.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = b.cmd.Process.Kill()
	}

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		_ = b.cmd.Process.Kill()
		<-waited
	}

	// Clean up temp data directory
	if b.ownsData && b.dataDir != "" {
		os.RemoveAll(b.dataDir)
	}

	b.cmd = nil
	return nil
}

// WebSocketURL returns the WebSocket URL for connecting to the first page target.
func (b *Browser) WebSocketURL(ctx context.Context) (string, error) {
	target, err := b.PageTarget(ctx)
	if err != nil {
		return "", err
	}

	if target.WebSocketURL == "" {
		return "", fmt.Errorf("target has no WebSocket URL")
	}

	return target.WebSocketURL, nil
}
