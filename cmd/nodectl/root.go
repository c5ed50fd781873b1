package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrfiwd/tieredkv/internal/cluster"
	"github.com/mrfiwd/tieredkv/internal/logging"
	"github.com/mrfiwd/tieredkv/internal/supervisor"
)

var (
	topoPath   string
	nodeBinary string
	dataDir    string
)

// rootCmd wraps internal/supervisor.Supervisor. It takes no ad hoc
// PUT/GET input; it only starts, stops, and reports on node processes.
var rootCmd = &cobra.Command{
	Use:   "nodectl",
	Short: "Start, stop, and inspect a tieredkv node cluster",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&topoPath, "topology", "configs/topology.yaml", "path to the cluster topology YAML file")
	rootCmd.PersistentFlags().StringVar(&nodeBinary, "node-binary", "./kvnode", "path to the kvnode executable")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "root directory for node partition segment logs")

	rootCmd.AddCommand(upCmd, downCmd, statusCmd)
}

func loadSupervisor() (*supervisor.Supervisor, *cluster.Topology, error) {
	topology, err := cluster.Load(topoPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger()
	return supervisor.New(topology, nodeBinary, topoPath, dataDir, logger), topology, nil
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start every node process in the topology and wait for readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, err := loadSupervisor()
		if err != nil {
			return err
		}
		return sup.Up(context.Background())
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Send SHUTDOWN to every node and wait for its process to exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, err := loadSupervisor()
		if err != nil {
			return err
		}
		return sup.Down()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the node ids and endpoints in the topology",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, topology, err := loadSupervisor()
		if err != nil {
			return err
		}
		for nodeID, endpoint := range topology.Nodes {
			fmt.Fprintf(os.Stdout, "node %d -> %s\n", nodeID, endpoint.Addr())
		}
		return nil
	},
}
