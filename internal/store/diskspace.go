// Copyright (c) 2026 The nsyncd Authors. All rights reserved.

package store

import "github.com/shirou/gopsutil/v3/disk"

// hasFreeSpace reports whether the filesystem backing path has at least
// minFreeBytes available. Mirrors the teacher's disk-free admission
// check, scoped down to a single floor instead of a full StatusFull
// negotiation.
func hasFreeSpace(path string, minFreeBytes int64) (bool, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return false, err
	}
	return int64(usage.Free) >= minFreeBytes, nil
}
