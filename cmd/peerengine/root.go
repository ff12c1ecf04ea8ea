// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main wires configuration to the peer engine and runs it to
// completion. It contains no business logic of its own: every component it
// touches (session, tracker, piecestore, extractor) is built by its own
// package and only wired together here.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andres-erbsen/clock"

	"github.com/lindris/peerengine/config"
	"github.com/lindris/peerengine/configutil"
	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/extractor"
	"github.com/lindris/peerengine/log"
	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/metrics"
	"github.com/lindris/peerengine/peerhandler"
	"github.com/lindris/peerengine/piecestore"
	"github.com/lindris/peerengine/progress"
	"github.com/lindris/peerengine/session"
	"github.com/lindris/peerengine/tracker"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configFile, "config", "", "", "configuration file path")
	rootCmd.PersistentFlags().StringVarP(
		&metainfoFile, "torrent", "", "", "path to the .torrent metainfo file")
	rootCmd.PersistentFlags().StringVarP(
		&cluster, "cluster", "", "", "cluster name, passed through to the metrics backend")
}

var (
	configFile   string
	metainfoFile string
	cluster      string

	rootCmd = &cobra.Command{
		Short: "peerengine downloads and seeds a single torrent as a peer in its swarm.",
		Run: func(cmd *cobra.Command, args []string) {
			start()
		},
	}
)

// Execute runs the root command, parsing os.Args.
func Execute() {
	rootCmd.Execute()
}

func start() {
	if metainfoFile == "" {
		panic("must specify a .torrent metainfo file")
	}

	var cfg config.Config
	if err := configutil.Load(configFile, &cfg); err != nil {
		panic(err)
	}

	zlog := log.ConfigureLogger(cfg.ZapLogging)
	defer zlog.Sync()

	stats, closer, err := metrics.New(cfg.Metrics, cluster)
	if err != nil {
		log.Fatalf("Failed to init metrics: %s", err)
	}
	defer closer.Close()

	raw, err := os.ReadFile(metainfoFile)
	if err != nil {
		log.Fatalf("Failed to read metainfo file: %s", err)
	}
	info, err := metainfo.Load(raw)
	if err != nil {
		log.Fatalf("Failed to parse metainfo file: %s", err)
	}

	store, err := piecestore.NewFileStore(cfg.PieceDir)
	if err != nil {
		log.Fatalf("Failed to init piece store: %s", err)
	}

	peerID, err := core.RandomPeerID()
	if err != nil {
		log.Fatalf("Failed to generate peer id: %s", err)
	}

	spawn := peerhandler.NewSpawner(info, store, cfg.Handler, clock.New(), zlog)

	trackerClient := tracker.NewClient(cfg.Tracker, info.Announce, peerID, cfg.Session.ListenPort, zlog)

	ext := extractor.New(info, store, cfg.ExtractDir)

	mgr, err := session.NewManager(
		cfg.Session, info, peerID, stats, zlog, clock.New(), trackerClient, ext, spawn)
	if err != nil {
		log.Fatalf("Failed to create session manager: %s", err)
	}
	mgr.SetProgressView(progress.NewLoggingView(zlog))

	if err := mgr.Start(); err != nil {
		log.Fatalf("Failed to start session manager: %s", err)
	}

	log.Infof("Downloading %s (%d pieces)", info.Name, info.NumPieces())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	log.Info("Shutting down")
	mgr.Stop()
}
