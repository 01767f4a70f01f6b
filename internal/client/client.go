// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/nsyncd/internal/protocol"
)

// ErrNotConnected is returned by command issuers when the connection is
// down and no reconnect has yet restored it.
var ErrNotConnected = errors.New("client: not connected")

// Client owns one logical connection to the sync server: the socket, the
// send mutex serializing outbound frames, the monotonic seqn counter, and
// the response router the reader goroutine feeds.
//
// alive tracks whether conn is currently usable. Any command path or the
// reader may observe a broken connection and flip it false; Dial (called
// again by the Supervisor in reconnect.go) is the only path that flips it
// back to true.
type Client struct {
	address      string
	username     string
	readTimeout  time.Duration
	writeTimeout time.Duration
	throttle     int64

	logger *slog.Logger

	connMu sync.RWMutex
	conn   net.Conn

	sendMu sync.Mutex
	seqn   atomic.Uint32

	router *router

	alive atomic.Bool

	readerDone chan struct{}
	notify     NotificationHandler
}

// NotificationHandler processes an unsolicited SYNC_NOTIFICATION frame.
type NotificationHandler func(kind, filename string, size uint32)

// Options configures a Client.
type Options struct {
	Address      string
	Username     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ThrottleBps  int64
	Notify       NotificationHandler
}

// New creates a Client that is not yet connected. Call Dial to connect.
func New(opts Options, logger *slog.Logger) *Client {
	return &Client{
		address:      opts.Address,
		username:     opts.Username,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		throttle:     opts.ThrottleBps,
		logger:       logger,
		router:       newRouter(),
		notify:       opts.Notify,
	}
}

// Dial opens the connection, logs in, and starts the single reader
// goroutine. dial is supplied by the caller so tests and TLS wiring can
// vary how the socket is opened without touching the rest of Client.
func (c *Client) Dial(ctx context.Context, dial func(ctx context.Context, address string) (net.Conn, error)) error {
	conn, err := dial(ctx, c.address)
	if err != nil {
		return fmt.Errorf("client: dialing %s: %w", c.address, err)
	}
	protocol.SetNoDelay(conn)

	// Drain the previous reader before swapping the connection out from
	// under it: readLoop holds no lock on c.conn, so closing the old socket
	// concurrently with an in-flight reconnect could leave both the old and
	// new readLoop running against the same Client.
	if c.readerDone != nil {
		<-c.readerDone
	}

	c.connMu.Lock()
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()
	if old != nil {
		old.Close()
	}

	if err := c.sendLogin(); err != nil {
		conn.Close()
		return err
	}

	c.alive.Store(true)
	c.readerDone = make(chan struct{})
	go c.readLoop()
	return nil
}

func (c *Client) sendLogin() error {
	seqn := uint16(c.seqn.Add(1))
	frame, err := protocol.NewFrame(protocol.CmdLogin, seqn, 0, []byte(c.username))
	if err != nil {
		return err
	}

	conn := c.currentConn()
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := protocol.SendFrame(conn, frame); err != nil {
		return fmt.Errorf("client: sending login: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	reply, err := protocol.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("client: reading login reply: %w", err)
	}
	if reply.Type == protocol.CmdExit {
		return fmt.Errorf("client: login rejected: %s", string(reply.Body()))
	}
	if reply.Type != protocol.CmdLogin {
		return fmt.Errorf("client: unexpected login reply type %d", reply.Type)
	}
	return nil
}

func (c *Client) currentConn() net.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// Alive reports whether the connection is currently believed usable.
func (c *Client) Alive() bool { return c.alive.Load() }

// Close tears the connection down without reconnecting.
func (c *Client) Close() error {
	c.alive.Store(false)
	conn := c.currentConn()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	if c.readerDone != nil {
		<-c.readerDone
	}
	return err
}

// readLoop is the single reader task described in spec §4.5: every inbound
// frame either feeds the notification handler or is routed to a waiting
// command by seqn. No other goroutine ever reads from the connection.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	conn := c.currentConn()

	for {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, protocol.ErrTimeout) {
				continue
			}
			c.logger.Warn("reader stopped", "error", err)
			c.alive.Store(false)

			// Wake every command still waiting on this connection with no
			// header, so in-flight commands fail instead of blocking forever.
			c.router.mu.Lock()
			stranded := c.router.waiting
			c.router.waiting = make(map[uint16]*pending)
			c.router.mu.Unlock()
			for _, p := range stranded {
				p.header, p.body = nil, nil
				close(p.done)
			}
			return
		}

		if frame.Type == protocol.SyncNotification {
			if c.notify != nil {
				kind, filename := parseNotification(frame.Body())
				c.notify(kind, filename, frame.TotalSize)
			}
			continue
		}

		if !c.router.deliver(frame) {
			c.logger.Warn("dropping frame with no waiter", "seqn", frame.Seqn, "type", frame.Type)
		}
	}
}

func parseNotification(body []byte) (kind, filename string) {
	if len(body) < 2 || body[1] != ':' {
		return "", ""
	}
	return string(body[:1]), string(body[2:])
}

// issue sends a command frame and blocks until its response is fully
// assembled, per the command-issuing protocol in spec §4.5.
func (c *Client) issue(cmdType uint16, totalSize uint32, body []byte) (*protocol.Frame, []byte, error) {
	if !c.alive.Load() {
		return nil, nil, ErrNotConnected
	}

	seqn := uint16(c.seqn.Add(1))
	frame, err := protocol.NewFrame(cmdType, seqn, totalSize, body)
	if err != nil {
		return nil, nil, err
	}

	p := c.router.register(seqn)

	if err := c.sendFrame(frame); err != nil {
		c.router.forget(seqn)
		return nil, nil, fmt.Errorf("client: sending command %d: %w", cmdType, err)
	}

	header, data := p.wait()
	return header, data, nil
}

// sendData streams body as a sequence of DATA_PACKET frames sharing seqn,
// used by Upload after the header frame has already gone out. Throttling
// meters the payload bytes of each chunk before it goes out, so the
// aggregate send rate across the whole upload tracks the configured cap.
func (c *Client) sendData(ctx context.Context, seqn uint16, body []byte) error {
	limiter := newRateGate(c.throttle)

	for offset := 0; offset < len(body); offset += protocol.PayloadSize {
		end := offset + protocol.PayloadSize
		if end > len(body) {
			end = len(body)
		}
		if err := limiter.wait(ctx, end-offset); err != nil {
			return err
		}
		chunk, err := protocol.NewFrame(protocol.DataPacket, seqn, 0, body[offset:end])
		if err != nil {
			return err
		}
		if err := c.sendFrame(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendFrame(f *protocol.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	conn := c.currentConn()
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := protocol.SendFrame(conn, f); err != nil {
		c.alive.Store(false)
		return err
	}
	return nil
}
