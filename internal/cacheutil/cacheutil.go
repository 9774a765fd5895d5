// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cacheutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/subfish/subfish/internal/config"
	"github.com/subfish/subfish/internal/log"
)

// Entry is a cached artifact on disk. Key is the clear-text key and
// EncodedKey the hashed filename.
type Entry struct {
	Key        string
	EncodedKey string
	Path       string
	ModTime    time.Time
	Data       []byte
	// Serial numbers state snapshots, counting up from 1.
	Serial int
}

// Dir resolves the base cache directory.
// Precedence:
//  1. SUBFISH_CACHE_DIR, if set and non-empty
//  2. os.UserCacheDir()/subfish
//
// Returns ("", false) if a base cannot be resolved (treat as disabled).
func Dir() (string, bool) {
	if c, ok := os.LookupEnv("SUBFISH_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "subfish"), true
	}
	return "", false
}

// Enabled returns true unless SUBFISH_CACHE explicitly disables it ("0"/"false").
func Enabled() bool {
	enabled, _ := os.LookupEnv("SUBFISH_CACHE")
	return enabled == "" || (enabled != "0" && enabled != "false")
}

// EnsureBaseDir creates the base cache directory if caching is enabled and a
// base path can be resolved. Returns the path, whether it is usable, and an
// error if creation failed.
func EnsureBaseDir() (string, bool, error) {
	if !Enabled() {
		return "", false, nil
	}

	base, ok := Dir()
	if !ok {
		return "", false, nil
	}

	if err := os.MkdirAll(base, 0o755); err != nil { //nolint:mnd
		return base, false, fmt.Errorf("failed to create cache base directory: %w", err)
	}
	return base, true, nil
}

// EntryPath returns where an entry for clearKey beneath subdirs lives, and
// whether a file is there now.
func EntryPath(subdirs []string, clearKey string) (string, bool) {
	base, ok := Dir()
	if !ok {
		return "", false
	}
	p := filepath.Join(append([]string{base}, append(subdirs, encodeKey(clearKey))...)...)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return p, false
}

// Purge removes files older than hours. hours <= 0 disables purging.
func Purge(hours int) error {
	if hours <= 0 {
		log.Debugf("cache cleaning disabled")
		return nil
	}

	base, ok := Dir()
	if !ok {
		return nil
	}

	maxAge := time.Duration(hours) * time.Hour
	err := filepath.Walk(base, func(path string, info os.FileInfo, walkErr error) error {
		// Another run sharing the cache may remove files mid-walk.
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info == nil || info.IsDir() || time.Since(info.ModTime()) <= maxAge {
			return nil
		}

		if err := os.Remove(path); err != nil {
			log.WithError(err).Warnf("failed to remove cache file %s", path)
		} else {
			log.Debugf("removed cache file %s", path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}

// PurgeStale purges using the cache.clean hours from the user config.
func PurgeStale() error {
	hours, _ := config.GetInt("cache.clean", 0)
	return Purge(hours)
}

// Read returns the cached entry for clearKey, if any.
func Read(subdirs []string, clearKey string) (*Entry, bool) {
	if !Enabled() {
		return nil, false
	}
	p, ok := EntryPath(subdirs, clearKey)
	if !ok {
		return nil, false
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	log.Debugf("cache hit: key=%s", clearKey)
	return &Entry{
		Key:        clearKey,
		EncodedKey: encodeKey(clearKey),
		Path:       p,
		ModTime:    info.ModTime(),
		Data:       b,
	}, true
}

// Write stores data for clearKey beneath subdirs, creating directories as
// needed. A disabled cache makes this a no-op.
func Write(subdirs []string, clearKey string, data []byte) error {
	if !Enabled() {
		return nil
	}
	base, ok := Dir()
	if !ok {
		return nil
	}
	dir := filepath.Join(append([]string{base}, subdirs...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	p := filepath.Join(dir, encodeKey(clearKey))
	if err := os.WriteFile(p, data, os.FileMode(0o600)); err != nil { //nolint:mnd
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	log.Debugf("cache write: key=%s", clearKey)
	return nil
}

// DefaultSnapshots is how many previous versions of each state document are
// kept unless cache.snapshots says otherwise.
const DefaultSnapshots = 10

// snapshotDir holds the previous versions of each state document.
const snapshotDir = "snapshots"

// Snapshot stores data as the newest previous version of the state document
// known by source (its path or URL) and drops versions beyond the configured
// number.
func Snapshot(source string, data []byte) error {
	if !Enabled() {
		return nil
	}
	base, ok := Dir()
	if !ok {
		return nil
	}

	existing := Snapshots(source)
	serial := 1
	if len(existing) > 0 {
		serial = existing[0].Serial + 1
	}

	dir := filepath.Join(base, snapshotDir, encodeKey(source))
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	p := filepath.Join(dir, strconv.Itoa(serial)+snapshotExt)
	if err := os.WriteFile(p, data, 0o600); err != nil { //nolint:mnd
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	log.Debugf("snapshot: source=%s serial=%d", source, serial)

	keep, _ := config.GetInt("cache.snapshots", DefaultSnapshots)
	keep = max(keep, 1)
	if len(existing) >= keep {
		for _, e := range existing[keep-1:] {
			if err := os.Remove(e.Path); err != nil {
				log.WithError(err).Warnf("failed to remove snapshot %s", e.Path)
			}
		}
	}
	return nil
}

const snapshotExt = ".yml"

// Snapshots returns the stored previous versions of the state document known
// by source, newest first.
func Snapshots(source string) []*Entry {
	if !Enabled() {
		return nil
	}
	base, ok := Dir()
	if !ok {
		return nil
	}

	dir := filepath.Join(base, snapshotDir, encodeKey(source))
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []*Entry
	for _, f := range files {
		serial, err := strconv.Atoi(strings.TrimSuffix(f.Name(), snapshotExt))
		if f.IsDir() || !strings.HasSuffix(f.Name(), snapshotExt) || err != nil {
			continue
		}
		p := filepath.Join(dir, f.Name())
		info, err := f.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		out = append(out, &Entry{
			Key:        source,
			EncodedKey: encodeKey(source),
			Path:       p,
			ModTime:    info.ModTime(),
			Data:       data,
			Serial:     serial,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Serial > out[j].Serial })
	return out
}

// LastSnapshot returns the version of the state document known by source that
// the last save replaced, if one was stored.
func LastSnapshot(source string) (*Entry, bool) {
	snaps := Snapshots(source)
	if len(snaps) == 0 {
		return nil, false
	}
	return snaps[0], true
}

// encodeKey returns the hex sha256 of input.
func encodeKey(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}
