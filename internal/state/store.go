// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/subfish/subfish/internal/backend"
	"github.com/subfish/subfish/internal/log"
)

// Keys of the state document.
const (
	KeyVpc               = "Vpc"
	KeySubnets           = "Subnets"
	KeyRouteTables       = "RouteTables"
	KeyInternetGateway   = "InternetGateway"
	KeyNatGateways       = "NatGateways"
	KeySecurityGroups    = "SecurityGroups"
	KeyLaunchTemplates   = "LaunchTemplates"
	KeyInstances         = "Instances"
	KeyAutoScalingGroups = "AutoScalingGroups"
	KeyRoles             = "Roles"
	KeyCluster           = "Cluster"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("not in state")

// Store is the in-memory state document plus the backend it persists to.
type Store struct {
	mu       sync.RWMutex
	backend  backend.Backend
	data     map[string]any
	saved    []byte
	snapshot func(prev []byte) error
}

// Option customizes a Store.
type Option func(*Store)

// WithSnapshot registers fn to receive the previously persisted document
// before every save that changes it.
func WithSnapshot(fn func(prev []byte) error) Option {
	return func(s *Store) { s.snapshot = fn }
}

// Open loads the document from be. Nothing stored yet yields an empty store.
func Open(ctx context.Context, be backend.Backend, opts ...Option) (*Store, error) {
	s := &Store{backend: be, data: map[string]any{}}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := be.Read(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.load(raw); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", be, err)
	}
	s.saved = raw

	log.Debugf("state opened: source=%s keys=%v", be, s.Keys())
	return s, nil
}

// New returns an empty store that is never persisted.
func New() *Store {
	return &Store{data: map[string]any{}}
}

// Parse returns a detached store built from a YAML or JSON document.
func Parse(raw []byte) (*Store, error) {
	s := New()
	if err := s.load(raw); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	norm, err := normalize(doc)
	if err != nil {
		return err
	}
	if m, ok := norm.(map[string]any); ok {
		s.data = m
	}
	return nil
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Get decodes the value at key into out, typically an AWS SDK type or a slice
// of them.
func (s *Store) Get(key string, out any) error {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Set replaces the value at key. v is normalized into plain maps, slices,
// strings, numbers and bools.
func (s *Store) Set(key string, v any) error {
	norm, err := normalize(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = norm
	return nil
}

// Append adds v to the list at key, creating the list when absent.
func (s *Store) Append(key string, v any) error {
	norm, err := normalize(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.data[key].(type) {
	case nil:
		s.data[key] = []any{norm}
	case []any:
		s.data[key] = append(cur, norm)
	default:
		return fmt.Errorf("%s: cannot append to %T", key, cur)
	}
	return nil
}

// Delete drops key. Absent keys are ignored.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns the present keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// YAML renders the document the way it is persisted.
func (s *Store) YAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2) //nolint:mnd
	if err := enc.Encode(s.data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSON renders the document as JSON.
func (s *Store) JSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.data)
}

// Lookup queries the document with a gjson path such as "Vpc.VpcId" or
// "Subnets.#.SubnetId".
func (s *Store) Lookup(path string) gjson.Result {
	raw, err := s.JSON()
	if err != nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(raw, path)
}

// Clone returns a detached deep copy that is never persisted.
func (s *Store) Clone() (*Store, error) {
	raw, err := s.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to clone state: %w", err)
	}
	c := New()
	if err := c.load(raw); err != nil {
		return nil, fmt.Errorf("failed to clone state: %w", err)
	}
	return c, nil
}

// Detached reports whether Save is a no-op for this store.
func (s *Store) Detached() bool {
	return s.backend == nil
}

// Save persists the document. Unchanged documents are not rewritten.
func (s *Store) Save(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	raw, err := s.YAML()
	if err != nil {
		return fmt.Errorf("failed to render state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bytes.Equal(raw, s.saved) {
		return nil
	}

	if s.snapshot != nil && len(s.saved) > 0 {
		if err := s.snapshot(s.saved); err != nil {
			log.WithError(err).Warn("failed to snapshot state")
		}
	}

	if err := s.backend.Write(ctx, raw); err != nil {
		return err
	}
	s.saved = raw
	log.Debugf("state saved: keys=%d", len(s.data))
	return nil
}

// String names where the store persists.
func (s *Store) String() string {
	if s.backend == nil {
		return "(detached)"
	}
	return s.backend.String()
}
