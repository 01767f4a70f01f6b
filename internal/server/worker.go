// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/nsyncd/internal/protocol"
	"github.com/nishisan-dev/nsyncd/internal/registry"
	"github.com/nishisan-dev/nsyncd/internal/store"
)

// worker drives one accepted connection through the NEW -> AUTHED -> CLOSED
// state machine from spec §4.4. One goroutine per connection; all reads on
// it block, matching a thread-per-session scheduling model.
type worker struct {
	cfg    workerConfig
	sess   *session
	logger *slog.Logger
}

// workerConfig bundles the shared collaborators every worker dispatches
// against. readTimeout bounds each frame read so a dead peer is eventually
// detected and its session reclaimed. writeTimeout is not applied: response
// frames are written with no write deadline.
type workerConfig struct {
	store        *store.Store
	registry     *registry.Registry
	readTimeout  time.Duration
	writeTimeout time.Duration

	trafficIn *atomic.Int64
	diskWrite *atomic.Int64
}

func newWorker(conn net.Conn, cfg workerConfig, logger *slog.Logger) *worker {
	sess := newSession(conn, func(msg string, args ...any) { logger.Warn(msg, args...) })
	return &worker{cfg: cfg, sess: sess, logger: logger}
}

// run blocks until the connection closes or ctx is canceled.
func (w *worker) run(ctx context.Context) {
	defer w.sess.conn.Close()

	username, ok := w.login()
	if !ok {
		return
	}
	w.sess.username = username
	defer w.cfg.registry.Unregister(username, w.sess)

	w.logger.Info("session authenticated", "user", username, "remote", w.sess.id, "connected_at", w.sess.connectedAt)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.sess.conn.SetReadDeadline(time.Now().Add(w.cfg.readTimeout))
		frame, err := protocol.ReadFrame(w.sess.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrTimeout) {
				continue
			}
			if errors.Is(err, protocol.ErrConnectionClosed) {
				w.logger.Info("session closed by peer", "user", username)
			} else {
				w.logger.Warn("session framing error", "user", username, "error", err)
			}
			return
		}
		w.sess.touch()

		if !w.dispatch(frame) {
			return
		}
	}
}

// login consumes the first frame, which must be CMD_LOGIN, and registers
// the session. Returns the authenticated username and whether the caller
// should continue serving the connection.
func (w *worker) login() (string, bool) {
	w.sess.conn.SetReadDeadline(time.Now().Add(w.cfg.readTimeout))
	frame, err := protocol.ReadFrame(w.sess.conn)
	if err != nil {
		w.logger.Warn("login read failed", "remote", w.sess.id, "error", err)
		return "", false
	}
	if frame.Type != protocol.CmdLogin {
		w.logger.Warn("first frame was not CMD_LOGIN", "remote", w.sess.id, "type", frame.Type)
		return "", false
	}

	username := string(frame.Body())
	if err := store.ValidateUsername(username); err != nil {
		w.rejectLogin(frame.Seqn, "invalid username")
		return "", false
	}

	if err := w.cfg.store.InitUser(username); err != nil {
		w.rejectLogin(frame.Seqn, "server error")
		return "", false
	}

	if !w.cfg.registry.Register(username, w.sess) {
		w.rejectLogin(frame.Seqn, "session limit reached for user")
		return "", false
	}

	reply, _ := protocol.NewFrame(protocol.CmdLogin, frame.Seqn, 0, nil)
	if err := w.sess.send(reply); err != nil {
		w.cfg.registry.Unregister(username, w.sess)
		return "", false
	}

	return username, true
}

func (w *worker) rejectLogin(seqn uint16, reason string) {
	frame, _ := protocol.NewFrame(protocol.CmdExit, seqn, 0, []byte(reason))
	w.sess.send(frame)
}

// dispatch handles one post-login frame. Returns false when the connection
// must close (CMD_EXIT, or a failure that leaves the stream unusable).
func (w *worker) dispatch(frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.CmdUpload:
		return w.handleUpload(frame)
	case protocol.CmdDownload:
		return w.handleDownload(frame)
	case protocol.CmdDelete:
		return w.handleDelete(frame)
	case protocol.CmdListServer:
		return w.handleListServer(frame)
	case protocol.CmdGetSyncDir:
		return w.handleGetSyncDir(frame)
	case protocol.CmdExit:
		reply, _ := protocol.NewFrame(protocol.CmdExit, frame.Seqn, 0, []byte(protocol.StatusOK))
		w.sess.send(reply)
		return false
	default:
		w.logger.Warn("protocol violation: unexpected command", "user", w.sess.username, "type", frame.Type)
		return false
	}
}

func (w *worker) handleUpload(header *protocol.Frame) bool {
	filename := string(header.Body())
	total := int64(header.TotalSize)

	content := make([]byte, 0, total)
	for int64(len(content)) < total {
		w.sess.conn.SetReadDeadline(time.Now().Add(w.cfg.readTimeout))
		data, err := protocol.ReadFrame(w.sess.conn)
		if err != nil {
			w.logger.Warn("upload data read failed", "user", w.sess.username, "file", filename, "error", err)
			return false
		}
		if data.Type != protocol.DataPacket || data.Seqn != header.Seqn {
			w.logger.Warn("protocol violation during upload", "user", w.sess.username, "file", filename)
			return false
		}
		content = append(content, data.Body()...)
	}
	if w.cfg.trafficIn != nil {
		w.cfg.trafficIn.Add(int64(len(content)))
	}

	status := protocol.StatusOK
	if err := w.cfg.store.Save(w.sess.username, filename, content); err != nil {
		w.logger.Warn("upload save failed", "user", w.sess.username, "file", filename, "error", err)
		status = protocol.StatusError
	} else if w.cfg.diskWrite != nil {
		w.cfg.diskWrite.Add(int64(len(content)))
	}

	reply, _ := protocol.NewFrame(protocol.CmdUpload, header.Seqn, 0, []byte(status))
	if err := w.sess.send(reply); err != nil {
		return false
	}

	if status == protocol.StatusOK {
		registry.Notify(w.cfg.registry, w.sess.username, w.sess, registry.KindUpdate, filename)
	}
	return true
}

func (w *worker) handleDownload(header *protocol.Frame) bool {
	filename := string(header.Body())

	content, err := w.cfg.store.Read(w.sess.username, filename)
	if errors.Is(err, store.ErrNotFound) {
		reply, _ := protocol.NewFrame(protocol.CmdDownload, header.Seqn, 0, []byte(protocol.StatusNotFound))
		return w.sess.send(reply) == nil
	}
	if err != nil {
		w.logger.Warn("download read failed", "user", w.sess.username, "file", filename, "error", err)
		reply, _ := protocol.NewFrame(protocol.CmdDownload, header.Seqn, 0, []byte(protocol.StatusError))
		return w.sess.send(reply) == nil
	}

	reply, _ := protocol.NewFrame(protocol.CmdDownload, header.Seqn, uint32(len(content)), []byte(protocol.StatusOK))
	if err := w.sess.send(reply); err != nil {
		return false
	}

	for offset := 0; offset < len(content); offset += protocol.PayloadSize {
		end := offset + protocol.PayloadSize
		if end > len(content) {
			end = len(content)
		}
		chunk, _ := protocol.NewFrame(protocol.DataPacket, header.Seqn, 0, content[offset:end])
		if err := w.sess.send(chunk); err != nil {
			w.logger.Warn("download stream truncated", "user", w.sess.username, "file", filename, "error", err)
			return false
		}
	}
	return true
}

func (w *worker) handleDelete(header *protocol.Frame) bool {
	filename := string(header.Body())

	err := w.cfg.store.Delete(w.sess.username, filename)
	var status string
	switch {
	case err == nil:
		status = protocol.StatusOK
	case errors.Is(err, store.ErrNotFound):
		status = protocol.StatusNotFound
	default:
		w.logger.Warn("delete failed", "user", w.sess.username, "file", filename, "error", err)
		status = protocol.StatusError
	}

	reply, _ := protocol.NewFrame(protocol.CmdDelete, header.Seqn, 0, []byte(status))
	if sendErr := w.sess.send(reply); sendErr != nil {
		return false
	}

	if status == protocol.StatusOK {
		registry.Notify(w.cfg.registry, w.sess.username, w.sess, registry.KindDelete, filename)
	}
	return true
}

func (w *worker) handleListServer(header *protocol.Frame) bool {
	files, err := w.cfg.store.List(w.sess.username)
	if err != nil {
		w.logger.Warn("list failed", "user", w.sess.username, "error", err)
		reply, _ := protocol.NewFrame(protocol.CmdListServer, header.Seqn, 0, []byte(protocol.StatusError))
		return w.sess.send(reply) == nil
	}

	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s,%d,%d,%d,%d\n", f.Name, f.Size, f.Mtime.Unix(), f.Atime.Unix(), f.Ctime.Unix())
	}
	body := b.String()

	return w.sendStream(protocol.CmdListServer, header.Seqn, []byte(body))
}

// sendStream sends a status-only header frame carrying TotalSize, then
// streams the entire body as DATA_PACKET frames, the same split CMD_DOWNLOAD
// uses: the header never carries list/file bytes itself, so the router's
// TotalSize accounting (which only counts DATA_PACKET bodies) stays correct.
func (w *worker) sendStream(cmdType uint16, seqn uint16, body []byte) bool {
	header, _ := protocol.NewFrame(cmdType, seqn, uint32(len(body)), []byte(protocol.StatusOK))
	if err := w.sess.send(header); err != nil {
		return false
	}

	for offset := 0; offset < len(body); offset += protocol.PayloadSize {
		end := offset + protocol.PayloadSize
		if end > len(body) {
			end = len(body)
		}
		chunk, _ := protocol.NewFrame(protocol.DataPacket, seqn, 0, body[offset:end])
		if err := w.sess.send(chunk); err != nil {
			return false
		}
	}
	return true
}

func (w *worker) handleGetSyncDir(header *protocol.Frame) bool {
	files, err := w.cfg.store.List(w.sess.username)
	if err != nil {
		w.logger.Warn("get sync dir failed", "user", w.sess.username, "error", err)
		reply, _ := protocol.NewFrame(protocol.CmdGetSyncDir, header.Seqn, 0, []byte(protocol.StatusError))
		return w.sess.send(reply) == nil
	}

	reply, _ := protocol.NewFrame(protocol.CmdGetSyncDir, header.Seqn, uint32(len(files)), []byte(protocol.StatusOK))
	if err := w.sess.send(reply); err != nil {
		return false
	}

	for _, f := range files {
		body := fmt.Sprintf("U:%s", f.Name)
		notif, _ := protocol.NewFrame(protocol.SyncNotification, header.Seqn, uint32(f.Size), []byte(body))
		if err := w.sess.send(notif); err != nil {
			w.logger.Warn("get sync dir enumeration truncated", "user", w.sess.username, "error", err)
			return false
		}
	}
	return true
}
