// Package config loads and validates the static, load-time cluster
// configuration described in spec §6: cluster membership, this server's id,
// and the heartbeat/election timing parameters.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML document, grounded on
// raft-server/config.go's Node/Cluster shape, extended with the timing
// parameters spec §6 names explicitly.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Cluster ClusterConfig `yaml:"cluster"`
	Timing  TimingConfig  `yaml:"timing"`
}

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
	DataDir string `yaml:"data_dir"`
}

// ClusterConfig lists every member, including this node.
type ClusterConfig struct {
	Peers []PeerConfig `yaml:"peers"`
}

// PeerConfig is one cluster member's id and network address.
type PeerConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// TimingConfig carries the durations spec §6 requires: a heartbeat interval
// and an election-timeout range strictly above it (spec §5).
type TimingConfig struct {
	HeartbeatIntervalMS   int64 `yaml:"heartbeat_interval_ms"`
	ElectionIntervalMinMS int64 `yaml:"election_interval_min_ms"`
	ElectionIntervalMaxMS int64 `yaml:"election_interval_max_ms"`
}

// HeartbeatInterval returns the configured heartbeat interval as a Duration.
func (t TimingConfig) HeartbeatInterval() time.Duration {
	return time.Duration(t.HeartbeatIntervalMS) * time.Millisecond
}

// ElectionIntervalMin returns the configured election-timeout floor.
func (t TimingConfig) ElectionIntervalMin() time.Duration {
	return time.Duration(t.ElectionIntervalMinMS) * time.Millisecond
}

// ElectionIntervalMax returns the configured election-timeout ceiling.
func (t TimingConfig) ElectionIntervalMax() time.Duration {
	return time.Duration(t.ElectionIntervalMaxMS) * time.Millisecond
}

// Load reads, parses, and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks the static invariants a misconfigured cluster would
// otherwise violate silently: every node must agree on its own address, ids
// must be unique, and the election timeout must be strictly greater than
// the heartbeat interval (spec §5).
func (c *Config) Validate() error {
	if c.Node.ID == 0 {
		return fmt.Errorf("node.id must be greater than 0")
	}
	if c.Node.Address == "" {
		return fmt.Errorf("node.address is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}
	if len(c.Cluster.Peers) == 0 {
		return fmt.Errorf("cluster.peers must contain at least one peer")
	}

	found := false
	seen := make(map[uint64]bool, len(c.Cluster.Peers))
	for _, peer := range c.Cluster.Peers {
		if seen[peer.ID] {
			return fmt.Errorf("duplicate peer ID: %d", peer.ID)
		}
		seen[peer.ID] = true

		if peer.ID == c.Node.ID {
			found = true
			if peer.Address != c.Node.Address {
				return fmt.Errorf("node address mismatch: node.address=%s but peer address=%s",
					c.Node.Address, peer.Address)
			}
		}
	}
	if !found {
		return fmt.Errorf("node.id=%d not found in cluster.peers", c.Node.ID)
	}

	if c.Timing.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("timing.heartbeat_interval_ms must be positive")
	}
	if c.Timing.ElectionIntervalMinMS <= c.Timing.HeartbeatIntervalMS {
		return fmt.Errorf("timing.election_interval_min_ms must be greater than heartbeat_interval_ms")
	}
	if c.Timing.ElectionIntervalMaxMS < c.Timing.ElectionIntervalMinMS {
		return fmt.Errorf("timing.election_interval_max_ms must be >= election_interval_min_ms")
	}

	return nil
}

// PeerIDs returns every cluster member's id, including this node's.
func (c *Config) PeerIDs() []uint64 {
	ids := make([]uint64, len(c.Cluster.Peers))
	for i, p := range c.Cluster.Peers {
		ids[i] = p.ID
	}
	return ids
}

// PeerAddresses maps each peer id to its network address.
func (c *Config) PeerAddresses() map[uint64]string {
	out := make(map[uint64]string, len(c.Cluster.Peers))
	for _, p := range c.Cluster.Peers {
		out[p.ID] = p.Address
	}
	return out
}
