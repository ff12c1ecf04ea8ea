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

// Package config aggregates every component's Config into the single
// top-level struct the CLI entry point loads via configutil.Load.
package config

import (
	"go.uber.org/zap"

	"github.com/lindris/peerengine/metrics"
	"github.com/lindris/peerengine/peerhandler"
	"github.com/lindris/peerengine/session"
	"github.com/lindris/peerengine/tracker"
)

// Config is the full configuration for a peerengine process.
type Config struct {
	ZapLogging zap.Config         `yaml:"zap"`
	Metrics    metrics.Config     `yaml:"metrics"`
	Session    session.Config     `yaml:"session"`
	Handler    peerhandler.Config `yaml:"handler"`
	Tracker    tracker.Config     `yaml:"tracker"`

	// MetainfoPath is the .torrent file describing the download.
	MetainfoPath string `yaml:"metainfo_path"`

	// PieceDir is where completed pieces are persisted, one file per hash.
	PieceDir string `yaml:"piece_dir"`

	// ExtractDir is where the finished download's files are written once
	// every piece has verified.
	ExtractDir string `yaml:"extract_dir"`
}
