// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

//go:build !linux

package store

import (
	"io/fs"
	"time"
)

// accessTime and changeTime fall back to mtime on platforms where the
// raw atime/ctime fields aren't available through this build's Stat_t
// layout.
func accessTime(info fs.FileInfo) time.Time { return info.ModTime() }
func changeTime(info fs.FileInfo) time.Time { return info.ModTime() }
