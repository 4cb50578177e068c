package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned once the IPC connection is gone.
var ErrClosed = errors.New("mpv ipc connection closed")

type ipcEvent struct {
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	FileError string `json:"file_error,omitempty"`
}

type ipcMessage struct {
	ipcEvent
	RequestID int    `json:"request_id"`
	Error     string `json:"error"`
}

// ipc speaks mpv's line-delimited JSON protocol over one connection.
type ipc struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int
	pending map[int]chan error

	events chan ipcEvent
	done   chan struct{}
}

func newIPC(conn net.Conn) *ipc {
	c := &ipc{
		conn:    conn,
		pending: make(map[int]chan error),
		events:  make(chan ipcEvent, 32),
		done:    make(chan struct{}),
	}
	go c.read()
	return c
}

func (c *ipc) read() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		if msg.Event != "" {
			select {
			case c.events <- msg.ipcEvent:
			default:
				log.Trace().Str("event", msg.Event).Msg("Dropped mpv event")
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if !ok {
			continue
		}
		if msg.Error != "success" {
			ch <- fmt.Errorf("mpv: %s", msg.Error)
		} else {
			ch <- nil
		}
	}
}

// send writes a command without waiting for its reply.
func (c *ipc) send(args ...any) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	return c.write(id, args)
}

// command sends a command and waits for mpv to acknowledge it.
func (c *ipc) command(ctx context.Context, args ...any) error {
	ch := make(chan error, 1)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(id, args); err != nil {
		c.forget(id)
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *ipc) write(id int, args []any) error {
	data, err := json.Marshal(map[string]any{"command": args, "request_id": id})
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *ipc) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// drain discards queued events.
func (c *ipc) drain() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

// waitLoaded blocks until the file requested by loadfile has loaded or
// failed. End-of-file events for a replaced file are skipped.
func (c *ipc) waitLoaded(ctx context.Context) error {
	for {
		select {
		case ev := <-c.events:
			switch {
			case ev.Event == "file-loaded":
				return nil
			case ev.Event == "end-file" && ev.Reason == "error":
				if ev.FileError != "" {
					return fmt.Errorf("mpv could not play the stream: %s", ev.FileError)
				}
				return errors.New("mpv could not play the stream")
			}
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *ipc) close() error {
	return c.conn.Close()
}
