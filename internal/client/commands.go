// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package client

import (
	"context"
	"fmt"

	"github.com/nishisan-dev/nsyncd/internal/protocol"
)

// FileEntry describes one row of a CMD_LIST_SERVER response.
type FileEntry struct {
	Name  string
	Size  int64
	Mtime int64
	Atime int64
	Ctime int64
}

// Upload sends the full contents of filename to the server. On success the
// server notifies the uploader's other live sessions.
func (c *Client) Upload(ctx context.Context, filename string, content []byte) error {
	header, _, err := c.issueAndStream(protocol.CmdUpload, uint32(len(content)), []byte(filename), func(seqn uint16) error {
		return c.sendData(ctx, seqn, content)
	})
	if err != nil {
		return err
	}
	status := statusOf(header)
	if status != protocol.StatusOK {
		return fmt.Errorf("client: upload %s: server returned %s", filename, status)
	}
	return nil
}

// issueAndStream sends a command header and, once the header frame itself
// has gone out, runs streamBody to push any DATA_PACKET frames that follow
// it before the call starts waiting on the routing table.
func (c *Client) issueAndStream(cmdType uint16, totalSize uint32, body []byte, streamBody func(seqn uint16) error) (*protocol.Frame, []byte, error) {
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

	if streamBody != nil {
		if err := streamBody(seqn); err != nil {
			c.router.forget(seqn)
			c.alive.Store(false)
			return nil, nil, fmt.Errorf("client: streaming command %d body: %w", cmdType, err)
		}
	}

	header, data := p.wait()
	return header, data, nil
}

// Download fetches the full contents of filename. Returns (nil, false, nil)
// if the server reports the file absent.
func (c *Client) Download(filename string) ([]byte, bool, error) {
	header, body, err := c.issue(protocol.CmdDownload, 0, []byte(filename))
	if err != nil {
		return nil, false, err
	}
	switch statusOf(header) {
	case protocol.StatusNotFound:
		return nil, false, nil
	case protocol.StatusOK:
		return body, true, nil
	default:
		return nil, false, fmt.Errorf("client: download %s: server returned error", filename)
	}
}

// Delete removes filename from the server. Returns false if it was already
// absent; that is not treated as an error.
func (c *Client) Delete(filename string) (bool, error) {
	header, _, err := c.issue(protocol.CmdDelete, 0, []byte(filename))
	if err != nil {
		return false, err
	}
	switch statusOf(header) {
	case protocol.StatusNotFound:
		return false, nil
	case protocol.StatusOK:
		return true, nil
	default:
		return false, fmt.Errorf("client: delete %s: server returned error", filename)
	}
}

// ListServer enumerates the files the server currently has for this user.
func (c *Client) ListServer() ([]FileEntry, error) {
	header, body, err := c.issue(protocol.CmdListServer, 0, nil)
	if err != nil {
		return nil, err
	}
	if statusOf(header) != protocol.StatusOK {
		return nil, fmt.Errorf("client: list server failed")
	}
	return parseFileList(body)
}

// GetSyncDir requests the server enumerate its files as a batch of
// SYNC_NOTIFICATION frames, returning how many to expect; the caller (the
// engine's initial sync) follows up with individual Downloads as those
// notifications arrive on the normal notification path.
func (c *Client) GetSyncDir() (fileCount uint32, err error) {
	header, _, err := c.issue(protocol.CmdGetSyncDir, 0, nil)
	if err != nil {
		return 0, err
	}
	if statusOf(header) != protocol.StatusOK {
		return 0, fmt.Errorf("client: get sync dir failed")
	}
	return header.TotalSize, nil
}

// Exit tells the server this session is ending.
func (c *Client) Exit() error {
	_, _, err := c.issue(protocol.CmdExit, 0, nil)
	return err
}

func statusOf(header *protocol.Frame) string {
	if header == nil {
		return protocol.StatusError
	}
	return string(header.Body())
}

func parseFileList(data []byte) ([]FileEntry, error) {
	var out []FileEntry
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		line := string(data[start:i])
		start = i + 1
		if line == "" {
			continue
		}
		var e FileEntry
		if _, err := fmt.Sscanf(line, "%[^,],%d,%d,%d,%d", &e.Name, &e.Size, &e.Mtime, &e.Atime, &e.Ctime); err != nil {
			return nil, fmt.Errorf("client: parsing list row %q: %w", line, err)
		}
		out = append(out, e)
	}
	return out, nil
}
