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

// Package progress reports periodic download progress snapshots. The
// terminal animation the original implementation drove off these snapshots
// is out of scope here; View exists so the session has somewhere to send
// them regardless.
package progress

import "go.uber.org/zap"

// Snapshot is a single point-in-time summary of a download's state.
type Snapshot struct {
	PiecesComplete int
	PiecesTotal    int
	DownloadRate   float64 // bytes per stats sampling interval
	UploadRate     float64 // bytes per stats sampling interval
}

// View receives periodic Snapshots from the session. Implementations must
// not block the caller for long; the session sends on its own event loop.
type View interface {
	Update(s Snapshot)
}

// LoggingView is a View that writes each snapshot as a structured log line.
// It is the engine's only built-in View; a terminal UI would be a separate,
// external View implementation.
type LoggingView struct {
	logger *zap.SugaredLogger
}

// NewLoggingView creates a LoggingView writing through logger.
func NewLoggingView(logger *zap.SugaredLogger) *LoggingView {
	return &LoggingView{logger: logger}
}

// Update implements View.
func (v *LoggingView) Update(s Snapshot) {
	v.logger.Infow("Download progress",
		"piecesComplete", s.PiecesComplete,
		"piecesTotal", s.PiecesTotal,
		"downloadRate", s.DownloadRate,
		"uploadRate", s.UploadRate,
	)
}
