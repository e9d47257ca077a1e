// Package config decodes the on-disk TOML configuration file (spec.md §6)
// into the structs every other package actually runs with, the same
// toml-tagged-struct-plus-DefaultConf shape config/config.go uses in the
// wider PD/TiKV family of servers.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/log"

	"github.com/ridgekv/ridgekv/raftstore"
)

type Config struct {
	Server     Server    `toml:"server"`
	Engine     Engine    `toml:"engine"`
	RaftEngine Engine    `toml:"raft-engine"`
	RaftStore  RaftStore `toml:"raftstore"`
	Log        Log       `toml:"log"`
}

type Server struct {
	StoreAddr  string `toml:"store-addr"`
	StatusAddr string `toml:"status-addr"`
	PDAddr     string `toml:"pd-addr"`
}

type Engine struct {
	DBPath string `toml:"db-path"`
}

// RaftStore mirrors every raftstore.Config tunable, serialized as duration
// strings the way the wider PD/TiKV family writes them ("1s", "500ms").
type RaftStore struct {
	RaftBaseTickInterval         string `toml:"raft-base-tick-interval"`
	RaftHeartbeatTicks           int    `toml:"raft-heartbeat-ticks"`
	RaftElectionTimeoutTicks     int    `toml:"raft-election-timeout-ticks"`
	RaftMaxSizePerMsg            uint64 `toml:"raft-max-size-per-msg"`
	RaftMaxInflightMsgs          int    `toml:"raft-max-inflight-msgs"`
	RaftLogGCTickInterval        string `toml:"raft-log-gc-tick-interval"`
	RaftLogGCThreshold           uint64 `toml:"raft-log-gc-threshold"`
	RaftLogGCCountLimit          uint64 `toml:"raft-log-gc-count-limit"`
	SplitRegionCheckTickInterval string `toml:"split-region-check-tick-interval"`
	RegionMaxSize                uint64 `toml:"region-max-size"`
	RegionSplitSize              uint64 `toml:"region-split-size"`
	RegionCheckSizeDiff          uint64 `toml:"region-check-size-diff"`
	PdHeartbeatTickInterval      string `toml:"pd-heartbeat-tick-interval"`
	PdStoreHeartbeatTickInterval string `toml:"pd-store-heartbeat-tick-interval"`
	SnapMgrGCTickInterval        string `toml:"snap-mgr-gc-tick-interval"`
	SnapGCTimeout                string `toml:"snap-gc-timeout"`
	NotifyCapacity               int    `toml:"notify-capacity"`
	MessagesPerTick              int    `toml:"messages-per-tick"`
	StorageSchedConcurrency      int    `toml:"storage-sched-concurrency"`
	Capacity                     uint64 `toml:"capacity"`
	TransferLeaderAllowLogLag    uint64 `toml:"transfer-leader-allow-log-lag"`
}

// Log configures pingcap/log's zap-backed global logger plus the
// lumberjack-driven rotation policy layered under it (spec.md's AMBIENT
// STACK "logging" section).
type Log struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max-size-mb"`
	MaxBackups int    `toml:"max-backups"`
	MaxAgeDays int    `toml:"max-age-days"`
}

const mb = 1024 * 1024

// DefaultConf is what a store runs with absent a config file, matching the
// teacher's single-node test-cluster defaults.
var DefaultConf = Config{
	Server: Server{
		StoreAddr:  "127.0.0.1:9191",
		StatusAddr: "127.0.0.1:9291",
		PDAddr:     "",
	},
	Engine:     Engine{DBPath: "/tmp/ridgekv/kv"},
	RaftEngine: Engine{DBPath: "/tmp/ridgekv/raft"},
	RaftStore: RaftStore{
		RaftBaseTickInterval:         "1s",
		RaftHeartbeatTicks:           2,
		RaftElectionTimeoutTicks:     10,
		RaftMaxSizePerMsg:            mb,
		RaftMaxInflightMsgs:          256,
		RaftLogGCTickInterval:        "10s",
		RaftLogGCThreshold:           50,
		RaftLogGCCountLimit:          50000,
		SplitRegionCheckTickInterval: "10s",
		RegionMaxSize:                144 * mb,
		RegionSplitSize:              96 * mb,
		RegionCheckSizeDiff:          32 * mb,
		PdHeartbeatTickInterval:      "60s",
		PdStoreHeartbeatTickInterval: "10s",
		SnapMgrGCTickInterval:        "10s",
		SnapGCTimeout:                "4h",
		NotifyCapacity:               4096,
		MessagesPerTick:              4096,
		StorageSchedConcurrency:      256,
		TransferLeaderAllowLogLag:    10,
	},
	Log: Log{Level: "info", MaxSizeMB: 256, MaxBackups: 7, MaxAgeDays: 28},
}

// Load reads and decodes a TOML file at path on top of DefaultConf; fields
// absent from the file keep their default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConf
	if path == "" {
		return &cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseDuration follows config/config.go's lenient parse: a bare number is
// taken as seconds, matching the wider PD/TiKV family's TOML convention.
func parseDuration(s string) time.Duration {
	dur, err := time.ParseDuration(s)
	if err != nil {
		dur, err = time.ParseDuration(s + "s")
	}
	if err != nil || dur < 0 {
		log.S().Fatalf("invalid duration=%v", s)
	}
	return dur
}

// ToRaftStoreConfig converts the TOML-facing RaftStore block into the
// raftstore.Config the event loop actually runs with.
func (c *Config) ToRaftStoreConfig() *raftstore.Config {
	rs := c.RaftStore
	return &raftstore.Config{
		RaftBaseTickInterval:         parseDuration(rs.RaftBaseTickInterval),
		RaftHeartbeatTicks:           rs.RaftHeartbeatTicks,
		RaftElectionTimeoutTicks:     rs.RaftElectionTimeoutTicks,
		RaftMaxSizePerMsg:            rs.RaftMaxSizePerMsg,
		RaftMaxInflightMsgs:          rs.RaftMaxInflightMsgs,
		RaftLogGCTickInterval:        parseDuration(rs.RaftLogGCTickInterval),
		RaftLogGCThreshold:           rs.RaftLogGCThreshold,
		RaftLogGCCountLimit:          rs.RaftLogGCCountLimit,
		SplitRegionCheckTickInterval: parseDuration(rs.SplitRegionCheckTickInterval),
		RegionMaxSize:                rs.RegionMaxSize,
		RegionSplitSize:              rs.RegionSplitSize,
		RegionCheckSizeDiff:          rs.RegionCheckSizeDiff,
		PdHeartbeatTickInterval:      parseDuration(rs.PdHeartbeatTickInterval),
		PdStoreHeartbeatTickInterval: parseDuration(rs.PdStoreHeartbeatTickInterval),
		SnapMgrGCTickInterval:        parseDuration(rs.SnapMgrGCTickInterval),
		SnapGCTimeout:                parseDuration(rs.SnapGCTimeout),
		NotifyCapacity:               rs.NotifyCapacity,
		MessagesPerTick:              rs.MessagesPerTick,
		StorageSchedConcurrency:      rs.StorageSchedConcurrency,
		Capacity:                     rs.Capacity,
		TransferLeaderAllowLogLag:    rs.TransferLeaderAllowLogLag,
	}
}
