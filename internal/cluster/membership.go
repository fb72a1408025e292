package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/devrev/pairdb/repairscheduler/internal/model"
	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// MembershipConfig holds gossip membership configuration
type MembershipConfig struct {
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
	VirtualNodes   int
}

// nodeMeta is gossiped with every member so peers can place it on the ring
type nodeMeta struct {
	Address      string `json:"address"`
	VirtualNodes int    `json:"virtual_nodes"`
}

// Membership keeps the token ring in sync with gossip membership
type Membership struct {
	memberlist *memberlist.Memberlist
	cluster    *Cluster
	local      model.Host
	meta       nodeMeta
	logger     *zap.Logger
}

// NewMembership joins the gossip cluster
func NewMembership(cfg *MembershipConfig, local model.Host, cluster *Cluster, logger *zap.Logger) (*Membership, error) {
	m := newMembership(cfg, local, cluster, logger)

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = local.ID
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = m
	mlConfig.Events = &membershipEventDelegate{membership: m}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	m.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return m, nil
}

func newMembership(cfg *MembershipConfig, local model.Host, cluster *Cluster, logger *zap.Logger) *Membership {
	return &Membership{
		cluster: cluster,
		local:   local,
		meta: nodeMeta{
			Address:      local.Address,
			VirtualNodes: cfg.VirtualNodes,
		},
		logger: logger,
	}
}

// NodeMeta implements memberlist.Delegate
func (m *Membership) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(m.meta)
	if len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (m *Membership) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate
func (m *Membership) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (m *Membership) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (m *Membership) MergeRemoteState(buf []byte, join bool) {}

func (m *Membership) handleJoin(name, addr string, rawMeta []byte) {
	meta := nodeMeta{VirtualNodes: m.meta.VirtualNodes}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			m.logger.Warn("Failed to decode member metadata",
				zap.String("node_id", name),
				zap.Error(err))
		}
	}
	if meta.Address == "" {
		meta.Address = addr
	}

	m.logger.Info("Member joined",
		zap.String("node_id", name),
		zap.String("addr", meta.Address))
	m.cluster.AddHost(model.Host{ID: name, Address: meta.Address}, meta.VirtualNodes)
}

func (m *Membership) handleLeave(name string) {
	m.logger.Info("Member left", zap.String("node_id", name))
	m.cluster.RemoveHost(name)
}

// Members returns the live members
func (m *Membership) Members() []model.Host {
	if m.memberlist == nil {
		return nil
	}
	members := m.memberlist.Members()
	hosts := make([]model.Host, 0, len(members))
	for _, n := range members {
		hosts = append(hosts, model.Host{ID: n.Name, Address: n.Address()})
	}
	return hosts
}

// Shutdown leaves the gossip cluster
func (m *Membership) Shutdown() error {
	if m.memberlist == nil {
		return nil
	}
	if err := m.memberlist.Leave(5 * time.Second); err != nil {
		m.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
	}
	return m.memberlist.Shutdown()
}

// membershipEventDelegate handles memberlist events
type membershipEventDelegate struct {
	membership *Membership
}

// NotifyJoin is called when a node joins
func (d *membershipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.membership.handleJoin(node.Name, node.Addr.String(), node.Meta)
}

// NotifyLeave is called when a node leaves
func (d *membershipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.membership.handleLeave(node.Name)
}

// NotifyUpdate is called when a node is updated
func (d *membershipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.membership.logger.Debug("Member updated", zap.String("node_id", node.Name))
}
