package main

import (
	"flag"
	"os"
	"path/filepath"

	"transfersafe/config"
	"transfersafe/core"
	"transfersafe/crypto"
	"transfersafe/observability/logging"
	"transfersafe/rpc"
	"transfersafe/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("transfersafed", "", logging.Options{}).Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("transfersafed", cfg.Env, logging.Options{File: cfg.LogFile})

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open database", "dataDir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	owner, err := crypto.ParseAddress(cfg.GenesisAdmin)
	if err != nil {
		logger.Error("invalid genesis admin address", "error", err)
		os.Exit(1)
	}
	alloc, err := cfg.Alloc()
	if err != nil {
		logger.Error("invalid genesis allocation", "error", err)
		os.Exit(1)
	}

	node, err := core.NewNode(db, core.Genesis{
		ChainID:    cfg.ChainID,
		Owner:      owner,
		DefaultFee: cfg.DefaultFee,
		Alloc:      alloc,
	}, logger)
	if err != nil {
		logger.Error("failed to initialise node", "error", err)
		os.Exit(1)
	}

	logger.Info("node ready", "chainId", node.ChainID(), "rpc", cfg.RPCAddress)
	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
