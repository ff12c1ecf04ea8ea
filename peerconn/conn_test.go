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
package peerconn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/wire"
)

func TestConnClose(t *testing.T) {
	require := require.New(t)

	c, cleanup := Fixture()
	defer cleanup()

	require.False(c.IsClosed())

	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	require.True(c.IsClosed())
}

func TestConnSendAndReceive(t *testing.T) {
	require := require.New(t)

	local, remote, cleanup := PipeFixture(ConfigFixture(), core.InfoHashFixture())
	defer cleanup()

	require.NoError(local.Send(wire.HaveFrame(3)))

	select {
	case f := <-remote.Receiver():
		require.Equal(wire.KindHave, f.Kind)
		require.Equal(uint32(3), f.Index)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestConnClosedAfterPeerCloses(t *testing.T) {
	require := require.New(t)

	local, remote, cleanup := PipeFixture(ConfigFixture(), core.InfoHashFixture())
	defer cleanup()

	remote.Close()

	select {
	case _, ok := <-local.Receiver():
		require.False(ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for local conn to observe close")
	}
}
