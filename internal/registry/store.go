// Package registry tracks the shipper instances that ingest into this node.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Instance is a shipper seen on POST /api/ingest.
type Instance struct {
	InstanceID   string `json:"instance_id"`
	IP           string `json:"ip"`
	UserAgent    string `json:"user_agent"`
	Entries      int64  `json:"entries"`
	RegisteredAt int64  `json:"registered_at"`
	LastSeenAt   int64  `json:"last_seen_at"`
}

// Store handles the storage of shipper instances.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	now       func() time.Time
}

// NewStore creates a new registry store.
func NewStore() *Store {
	return &Store{
		instances: make(map[string]*Instance),
		now:       time.Now,
	}
}

// Record registers the instance on first sight and adds entries to its count.
func (s *Store) Record(instanceID, ip, userAgent string, entries int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	inst, ok := s.instances[instanceID]
	if !ok {
		inst = &Instance{InstanceID: instanceID, RegisteredAt: now}
		s.instances[instanceID] = inst
	}
	inst.IP = ip
	inst.UserAgent = userAgent
	inst.Entries += int64(entries)
	inst.LastSeenAt = now
}

// GetInstance retrieves a copy of an instance by ID.
func (s *Store) GetInstance(instanceID string) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// ListInstances returns all instances, oldest registration first.
func (s *Store) ListInstances() []Instance {
	s.mu.RLock()
	list := make([]Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		list = append(list, *inst)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].RegisteredAt != list[j].RegisteredAt {
			return list[i].RegisteredAt < list[j].RegisteredAt
		}
		return list[i].InstanceID < list[j].InstanceID
	})
	return list
}

// PruneStaleInstances removes instances that haven't been seen for a duration.
func (s *Store) PruneStaleInstances(timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	count := 0
	timeoutSec := int64(timeout.Seconds())

	for id, inst := range s.instances {
		if now-inst.LastSeenAt > timeoutSec {
			delete(s.instances, id)
			count++
		}
	}
	return count
}

// RunCleanupLoop prunes stale instances every interval until ctx is done.
func (s *Store) RunCleanupLoop(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.PruneStaleInstances(timeout)
		case <-ctx.Done():
			return
		}
	}
}
