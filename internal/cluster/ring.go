package cluster

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
)

// TokenRing places hosts on a signed 64-bit token ring using virtual nodes
type TokenRing struct {
	ring       []int64              // Sorted tokens
	ringMap    map[int64]string     // Token -> host id
	hostTokens map[string][]int64   // Host id -> tokens
	hosts      map[string]model.Host
	mu         sync.RWMutex
}

// NewTokenRing creates an empty token ring
func NewTokenRing() *TokenRing {
	return &TokenRing{
		ring:       make([]int64, 0),
		ringMap:    make(map[int64]string),
		hostTokens: make(map[string][]int64),
		hosts:      make(map[string]model.Host),
	}
}

// AddHost adds a host with the given number of virtual nodes.
// Returns false if the host is already on the ring.
func (r *TokenRing) AddHost(host model.Host, virtualNodes int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.hosts[host.ID]; exists {
		return false
	}
	if virtualNodes <= 0 {
		virtualNodes = 1
	}

	tokens := make([]int64, 0, virtualNodes)
	for i := 0; i < virtualNodes; i++ {
		token := Token(fmt.Sprintf("%s-vnode-%d", host.ID, i))
		if _, taken := r.ringMap[token]; taken {
			continue
		}
		r.ring = append(r.ring, token)
		r.ringMap[token] = host.ID
		tokens = append(tokens, token)
	}

	r.hosts[host.ID] = host
	r.hostTokens[host.ID] = tokens
	sort.Slice(r.ring, func(i, j int) bool { return r.ring[i] < r.ring[j] })
	return true
}

// RemoveHost removes a host and its virtual nodes.
// Returns false if the host was not on the ring.
func (r *TokenRing) RemoveHost(hostID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens, exists := r.hostTokens[hostID]
	if !exists {
		return false
	}

	removed := make(map[int64]bool, len(tokens))
	for _, token := range tokens {
		removed[token] = true
		delete(r.ringMap, token)
	}

	newRing := make([]int64, 0, len(r.ring)-len(tokens))
	for _, token := range r.ring {
		if !removed[token] {
			newRing = append(newRing, token)
		}
	}
	r.ring = newRing

	delete(r.hostTokens, hostID)
	delete(r.hosts, hostID)
	return true
}

// HasHost checks if the host owns tokens on the ring
func (r *TokenRing) HasHost(hostID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.hosts[hostID]
	return exists
}

// Hosts returns the hosts on the ring ordered by id
func (r *TokenRing) Hosts() []model.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hosts := make([]model.Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts
}

// HostCount returns the number of hosts on the ring
func (r *TokenRing) HostCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

// TokenRanges returns every vnode range (previous token, token], ordered by
// start. The range ending at the lowest token wraps around.
func (r *TokenRing) TokenRanges() []model.LongTokenRange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokenRangesLocked()
}

// RangeReplicas returns every vnode range with its replica set for the
// given replication factor
func (r *TokenRing) RangeReplicas(replicationFactor int) map[model.LongTokenRange][]model.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[model.LongTokenRange][]model.Host, len(r.ring))
	for _, tokenRange := range r.tokenRangesLocked() {
		result[tokenRange] = r.replicasLocked(tokenRange.End, replicationFactor)
	}
	return result
}

// Replicas returns the replica set of the range ending at the given token
func (r *TokenRing) Replicas(tokenRange model.LongTokenRange, replicationFactor int) []model.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replicasLocked(tokenRange.End, replicationFactor)
}

func (r *TokenRing) tokenRangesLocked() []model.LongTokenRange {
	if len(r.ring) == 0 {
		return nil
	}

	ranges := make([]model.LongTokenRange, 0, len(r.ring))
	for i, token := range r.ring {
		prev := r.ring[(i-1+len(r.ring))%len(r.ring)]
		ranges = append(ranges, model.NewLongTokenRange(prev, token))
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges
}

// replicasLocked walks the ring clockwise from the given token collecting
// distinct hosts
func (r *TokenRing) replicasLocked(token int64, count int) []model.Host {
	if len(r.ring) == 0 || count <= 0 {
		return nil
	}

	idx := sort.Search(len(r.ring), func(i int) bool {
		return r.ring[i] >= token
	})
	if idx >= len(r.ring) {
		idx = 0
	}

	replicas := make([]model.Host, 0, count)
	seen := make(map[string]bool)
	for i := 0; i < len(r.ring) && len(replicas) < count; i++ {
		hostID := r.ringMap[r.ring[(idx+i)%len(r.ring)]]
		if seen[hostID] {
			continue
		}
		seen[hostID] = true
		replicas = append(replicas, r.hosts[hostID])
	}
	return replicas
}

// Token hashes a key onto the ring
func Token(key string) int64 {
	h := sha256.New()
	h.Write([]byte(key))
	return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}
