// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// =============================================================================
// FILE TRANSPORT
// =============================================================================

// FileTransport replays a recorded NDJSON response body from disk. The request
// is ignored. It is used to reproduce a turn offline.
type FileTransport struct {
	Path string

	// ChunkSize splits reads into chunks of at most this many bytes (0 means
	// no limit). Delay pauses before every chunk. Together they simulate a
	// slow network.
	ChunkSize int
	Delay     time.Duration
}

// ChatStream opens the recorded body. Reads fail with the context error once
// ctx is cancelled.
func (f *FileTransport) ChatStream(ctx context.Context, _ ChatRequest) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: fmt.Sprintf("open recording %s", f.Path), Cause: err}
	}
	return &replayBody{ctx: ctx, file: file, chunk: f.ChunkSize, delay: f.Delay}, nil
}

type replayBody struct {
	ctx   context.Context
	file  *os.File
	chunk int
	delay time.Duration
}

func (r *replayBody) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-r.ctx.Done():
			t.Stop()
			return 0, r.ctx.Err()
		case <-t.C:
		}
	}
	if r.chunk > 0 && len(p) > r.chunk {
		p = p[:r.chunk]
	}
	return r.file.Read(p)
}

func (r *replayBody) Close() error {
	return r.file.Close()
}
