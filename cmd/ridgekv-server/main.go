// Command ridgekv-server runs one store of a ridgekv cluster: it loads the
// TOML config (spec.md §6), opens its two badger engines, bootstraps or
// restarts the raftstore, and serves the gRPC Cmd/Raft/transactional
// surface plus a small status endpoint — the single binary a deployment
// actually runs, in the cobra-root-command shape cuemby-warren's CLI uses.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/Connor1996/badger"
	"github.com/pingcap/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ridgekv/ridgekv/config"
	"github.com/ridgekv/ridgekv/engine_util"
	"github.com/ridgekv/ridgekv/raftstore"
	"github.com/ridgekv/ridgekv/server"
	"github.com/ridgekv/ridgekv/txnstore"
)

var (
	cfgPath  string
	storeID  uint64
	peerID   uint64
	regionID uint64
	cluster  string
	cfg      *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ridgekv-server",
	Short: "ridgekv-server runs one store of a sharded, Raft-replicated transactional KV cluster",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to a TOML config file (defaults baked in if omitted)")
	flags.Uint64Var(&storeID, "store-id", 1, "this store's id")
	flags.Uint64Var(&peerID, "peer-id", 1, "this store's peer id in the bootstrap region")
	flags.Uint64Var(&regionID, "region-id", 1, "region id to bootstrap a brand new cluster with")
	flags.String("store-addr", "", "override config's server.store-addr")
	flags.String("status-addr", "", "override config's server.status-addr")
	flags.String("data-dir", "", "override config's engine.db-path/raft-engine.db-path (suffixed /kv and /raft)")
	flags.StringVar(&cluster, "cluster", "", "comma separated store_id=addr pairs, e.g. 1=127.0.0.1:9191,2=127.0.0.1:9192")

	cobra.OnInitialize(loadConfig)
}

// loadConfig runs before RunE, the same cobra.OnInitialize hook
// cuemby-warren's initLogging uses: it's the earliest point the flags are
// populated, and the latest point we can still be config-agnostic.
func loadConfig() {
	logrus.Infof("loading config from %q", cfgPath)
	c, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	flags := rootCmd.Flags()
	if v, _ := flags.GetString("store-addr"); v != "" {
		c.Server.StoreAddr = v
	}
	if v, _ := flags.GetString("status-addr"); v != "" {
		c.Server.StatusAddr = v
	}
	if v, _ := flags.GetString("data-dir"); v != "" {
		c.Engine.DBPath = v + "/kv"
		c.RaftEngine.DBPath = v + "/raft"
	}
	cfg = c
	initLogging(c.Log)
	logrus.Info("config loaded, switching to structured logging")
}

// initLogging is the two-phase bootstrap spec.md's AMBIENT STACK describes:
// logrus carries every message up to this point, since the log file path
// and level are themselves config fields we can't know before parsing;
// from here on pingcap/log's zap-backed global logger, rotated by
// lumberjack, is the one everything else calls into.
func initLogging(lc config.Log) {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(lc.Level))

	var ws zapcore.WriteSyncer
	if lc.File == "" {
		ws = zapcore.AddSync(os.Stderr)
	} else {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
		})
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, level)
	log.ReplaceGlobals(zap.New(core), nil)
}

func run(cmd *cobra.Command, args []string) error {
	kvDB, err := openBadger(cfg.Engine.DBPath)
	if err != nil {
		return fmt.Errorf("open kv engine: %w", err)
	}
	raftDB, err := openBadger(cfg.RaftEngine.DBPath)
	if err != nil {
		return fmt.Errorf("open raft engine: %w", err)
	}
	engines := engine_util.NewEngines(kvDB, raftDB, cfg.Engine.DBPath, cfg.RaftEngine.DBPath)

	resolver, err := parseCluster(cluster)
	if err != nil {
		return err
	}
	trans := server.NewGRPCTransport(resolver)

	store := raftstore.NewStore(storeID, cfg.ToRaftStoreConfig(), engines, trans)
	if store.IsEmpty() {
		log.Info("bootstrapping new cluster region", zap.Uint64("region_id", regionID), zap.Uint64("peer_id", peerID))
		if _, err := store.BootstrapFirstRegion(regionID, peerID); err != nil {
			return fmt.Errorf("bootstrap first region: %w", err)
		}
	} else if err := store.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap existing store: %w", err)
	}

	go store.Run()
	defer store.Stop()

	txn := txnstore.NewTxnStore(txnstore.NewRaftEngine(store))
	srv := server.New(store, txn)
	defer srv.Stop()

	go func() {
		http.Handle("/status", srv.StatusHandler())
		if err := http.ListenAndServe(cfg.Server.StatusAddr, nil); err != nil {
			log.Warn("status endpoint stopped", zap.Error(err))
		}
	}()

	log.Info("ridgekv-server starting", zap.Uint64("store_id", storeID), zap.String("addr", cfg.Server.StoreAddr))
	return srv.Serve(cfg.Server.StoreAddr)
}

func openBadger(dir string) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	return badger.Open(opts)
}

// staticResolver implements server.Resolver off the --cluster flag, the
// simplest possible stand-in for a PD-backed store directory (spec.md §1
// treats PD as an out-of-scope external collaborator).
type staticResolver map[uint64]string

func (r staticResolver) StoreAddr(storeID uint64) (string, bool) {
	addr, ok := r[storeID]
	return addr, ok
}

func parseCluster(s string) (staticResolver, error) {
	resolver := staticResolver{}
	if s == "" {
		return resolver, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid --cluster entry %q", pair)
		}
		id, err := strconv.ParseUint(kv[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid store id in %q: %w", pair, err)
		}
		resolver[id] = kv[1]
	}
	return resolver, nil
}
