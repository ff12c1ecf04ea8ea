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

// Package log provides a single package-level logger for the CLI entry
// point, configured once at startup. Library packages take a
// *zap.SugaredLogger explicitly instead of reaching for this global; it
// exists only for cmd/peerengine's top-level Fatal-on-error convenience.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	sugared = zap.NewNop().Sugar()
)

// ConfigureLogger builds a logger from config, installs it as the package
// global, and returns it so the caller can defer its Sync.
func ConfigureLogger(config zap.Config) *zap.SugaredLogger {
	logger, err := config.Build()
	if err != nil {
		panic("log: invalid zap config: " + err.Error())
	}
	sugar := logger.Sugar()

	mu.Lock()
	sugared = sugar
	mu.Unlock()

	return sugar
}

func current() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return sugared
}

// Info logs at info level through the package global logger.
func Info(args ...interface{}) { current().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(template string, args ...interface{}) { current().Infof(template, args...) }

// Error logs at error level through the package global logger.
func Error(args ...interface{}) { current().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(template string, args ...interface{}) { current().Errorf(template, args...) }

// Fatal logs at fatal level and exits the process.
func Fatal(args ...interface{}) { current().Fatal(args...) }

// Fatalf logs a formatted message at fatal level and exits the process.
func Fatalf(template string, args ...interface{}) { current().Fatalf(template, args...) }

// With returns a logger with the given structured fields attached.
func With(args ...interface{}) *zap.SugaredLogger { return current().With(args...) }
