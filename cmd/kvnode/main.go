// cmd/kvnode/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrfiwd/tieredkv/internal/cluster"
	"github.com/mrfiwd/tieredkv/internal/logging"
	"github.com/mrfiwd/tieredkv/internal/node"
)

func main() {
	var (
		nodeID   = flag.Int("node-id", 0, "this node's id, as it appears in the topology file")
		topoPath = flag.String("topology", "configs/topology.yaml", "path to the cluster topology YAML file")
		dataDir  = flag.String("data-dir", "data", "root directory for this node's partition segment logs")
	)
	flag.Parse()

	logger := logging.NewNodeLogger(*nodeID)

	topology, err := cluster.Load(*topoPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load topology")
	}
	endpoint, ok := topology.Nodes[*nodeID]
	if !ok {
		logger.Fatal().Int("node_id", *nodeID).Msg("node id not present in topology")
	}

	n, err := node.New(*nodeID, topology, *dataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct node")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		_ = n.Shutdown()
	}()

	logger.Info().Str("addr", endpoint.Addr()).Msg("starting node")
	if err := n.ListenAndServe(endpoint.Addr()); err != nil {
		fmt.Fprintf(os.Stderr, "kvnode: %v\n", err)
		os.Exit(1)
	}
}
