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
package tracker

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/session"
)

// Client announces to a single BEP 3 HTTP tracker and implements
// session.Tracker.
type Client struct {
	config      Config
	announceURL string
	peerID      core.PeerID
	listenPort  int
	httpClient  *http.Client
	logger      *zap.SugaredLogger
}

// NewClient creates a Client that announces to announceURL on behalf of
// peerID, advertising listenPort as this peer's listening port.
func NewClient(
	config Config,
	announceURL string,
	peerID core.PeerID,
	listenPort int,
	logger *zap.SugaredLogger,
) *Client {
	config = config.applyDefaults()
	return &Client{
		config:      config,
		announceURL: announceURL,
		peerID:      peerID,
		listenPort:  listenPort,
		httpClient:  &http.Client{Timeout: config.AnnounceTimeout},
		logger:      logger,
	}
}

// Announce performs a single GET announce request and returns the peer list
// from the response. uploaded/downloaded/left are reported as zero; this
// engine does not yet track cumulative transfer totals across restarts.
func (c *Client) Announce(infoHash core.InfoHash, numWant int) ([]session.TrackerPeer, error) {
	if numWant <= 0 {
		numWant = c.config.NumWant
	}

	q := url.Values{}
	q.Set("info_hash", string(infoHash.Bytes()))
	q.Set("peer_id", string(c.peerID.Bytes()))
	q.Set("port", fmt.Sprintf("%d", c.listenPort))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", "0")
	q.Set("compact", "1")
	q.Set("numwant", fmt.Sprintf("%d", numWant))

	reqURL := c.announceURL + "?" + q.Encode()

	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("announce request: %s", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read announce response: %s", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("announce returned status %d: %s", resp.StatusCode, body)
	}

	interval, peers, err := parseAnnounceResponse(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debugw("Tracker announce succeeded",
		"numPeers", len(peers), "interval", interval)

	return peers, nil
}
