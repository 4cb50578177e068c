// Package player renders previews in an mpv window for the command line. MPV
// satisfies both halves of an overlay surface, so the same degradation and
// teardown rules apply as in the browser.
package player

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/dom"
)

const (
	// DefaultBinary is looked up on PATH.
	DefaultBinary = "mpv"

	dialTimeout = 5 * time.Second
	quitTimeout = 2 * time.Second
)

// MPV drives one mpv process over its JSON IPC socket. mpv is started idle
// and files are loaded with loadfile, so a failed direct stream leaves the
// process running for the fallback.
type MPV struct {
	// Binary overrides the executable. Empty means DefaultBinary.
	Binary string
	// Title is shown as the window title.
	Title string

	mu      sync.Mutex
	src     string
	rate    float64
	rect    dom.Rect
	visible bool

	cmd    *exec.Cmd
	exited chan struct{}
	conn   *ipc
	dir    string
}

// New returns an mpv-backed surface.
func New(title string) *MPV {
	return &MPV{Title: title, rate: 1}
}

// Available reports whether the mpv binary can be found.
func (m *MPV) Available() bool {
	_, err := exec.LookPath(m.binary())
	return err == nil
}

func (m *MPV) binary() string {
	if m.Binary != "" {
		return m.Binary
	}
	return DefaultBinary
}

// args builds the launch arguments. Previews are always muted.
func (m *MPV) args(socketPath string) []string {
	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=yes",
		"--mute=yes",
		"--no-terminal",
		"--no-border",
		"--ontop",
		"--input-ipc-server=" + socketPath,
		"--speed=" + strconv.FormatFloat(m.rate, 'f', -1, 64),
	}
	if m.Title != "" {
		args = append(args, "--title="+m.Title)
	}
	if !m.rect.Empty() {
		args = append(args, fmt.Sprintf("--geometry=%dx%d+%d+%d",
			int(m.rect.Width), int(m.rect.Height), int(m.rect.Left), int(m.rect.Top)))
	}
	return args
}

// SetSource records the stream to load on the next Play. An empty source
// quits mpv.
func (m *MPV) SetSource(url string) {
	m.mu.Lock()
	m.src = url
	m.mu.Unlock()
	if url == "" {
		m.stop()
	}
}

// Source returns the current stream URL.
func (m *MPV) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src
}

// SetPlaybackRate sets the speed for the next launch and the running player.
func (m *MPV) SetPlaybackRate(rate float64) {
	m.mu.Lock()
	m.rate = rate
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		_ = conn.send("set_property", "speed", rate)
	}
}

// Play starts mpv if needed, loads the current source and waits for mpv to
// report the file loaded or failed.
func (m *MPV) Play(ctx context.Context) error {
	conn, err := m.ensureRunning(ctx)
	if err != nil {
		return err
	}

	src := m.Source()
	if src == "" {
		return errors.New("no stream loaded")
	}

	conn.drain()
	if err := conn.command(ctx, "loadfile", src, "replace"); err != nil {
		return fmt.Errorf("mpv loadfile: %w", err)
	}
	if err := conn.waitLoaded(ctx); err != nil {
		return err
	}
	_ = conn.send("set_property", "pause", false)
	log.Debug().Str("url", src).Msg("mpv playback started")
	return nil
}

// Pause pauses playback.
func (m *MPV) Pause() {
	if conn := m.connection(); conn != nil {
		_ = conn.send("set_property", "pause", true)
	}
}

// SetCurrentTime seeks to seconds.
func (m *MPV) SetCurrentTime(seconds float64) {
	if conn := m.connection(); conn != nil {
		_ = conn.send("set_property", "time-pos", seconds)
	}
}

// SetRect sets the window geometry used at the next launch.
func (m *MPV) SetRect(r dom.Rect) {
	m.mu.Lock()
	m.rect = r
	m.mu.Unlock()
}

// SetVisible records visibility. Hiding quits the window.
func (m *MPV) SetVisible(v bool) {
	m.mu.Lock()
	m.visible = v
	m.mu.Unlock()
	if !v {
		m.stop()
	}
}

// Visible reports whether the window is meant to be shown.
func (m *MPV) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Element returns nil; the mpv window is not part of any document.
func (m *MPV) Element() dom.Element {
	return nil
}

// Exited is closed when the running mpv process exits, for example because
// the user closed the window. It is nil when mpv is not running.
func (m *MPV) Exited() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exited
}

// Close quits mpv if it is running.
func (m *MPV) Close() error {
	m.stop()
	return nil
}

func (m *MPV) connection() *ipc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

func (m *MPV) ensureRunning(ctx context.Context) (*ipc, error) {
	m.mu.Lock()
	if m.conn != nil {
		select {
		case <-m.exited:
		default:
			conn := m.conn
			m.mu.Unlock()
			return conn, nil
		}
	}
	m.mu.Unlock()
	m.stop()

	dir, err := os.MkdirTemp("", "vidprev-mpv-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	socketPath := filepath.Join(dir, "socket")

	m.mu.Lock()
	cmd := exec.Command(m.binary(), m.args(socketPath)...)
	m.mu.Unlock()
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("starting mpv: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	conn, err := dialSocket(ctx, socketPath, exited)
	if err != nil {
		_ = cmd.Process.Kill()
		<-exited
		_ = os.RemoveAll(dir)
		return nil, err
	}

	m.mu.Lock()
	m.cmd, m.exited, m.conn, m.dir = cmd, exited, conn, dir
	m.mu.Unlock()
	log.Debug().Int("pid", cmd.Process.Pid).Str("socket", socketPath).Msg("mpv started")
	return conn, nil
}

// dialSocket waits for mpv to create its IPC socket.
func dialSocket(ctx context.Context, path string, exited <-chan struct{}) (*ipc, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var d net.Dialer
	for {
		if conn, err := d.DialContext(ctx, "unix", path); err == nil {
			return newIPC(conn), nil
		}
		select {
		case <-exited:
			return nil, errors.New("mpv exited before opening its ipc socket")
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for mpv ipc socket: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// stop asks mpv to quit and kills it if it does not exit in time.
func (m *MPV) stop() {
	m.mu.Lock()
	cmd, exited, conn, dir := m.cmd, m.exited, m.conn, m.dir
	m.cmd, m.exited, m.conn, m.dir = nil, nil, nil, ""
	m.mu.Unlock()

	if cmd == nil {
		return
	}

	_ = conn.send("quit")
	select {
	case <-exited:
	case <-time.After(quitTimeout):
		log.Warn().Int("pid", cmd.Process.Pid).Msg("mpv did not quit; killing it")
		_ = cmd.Process.Kill()
		<-exited
	}
	_ = conn.close()
	_ = os.RemoveAll(dir)
	log.Debug().Msg("mpv stopped")
}
