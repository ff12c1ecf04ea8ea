package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindris/peerengine/bencode"
)

func TestParsePeersCompact(t *testing.T) {
	raw := []byte{127, 0, 0, 1, 0x1a, 0xe1}
	peers, err := ParsePeersCompact(raw)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "127.0.0.1:6881", peers[0].Addr)
}

func TestParsePeersCompactRejectsMisalignedLength(t *testing.T) {
	_, err := ParsePeersCompact([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestParsePeersDict(t *testing.T) {
	list := []bencode.Value{
		bencode.NewDict([]bencode.KV{
			{Key: []byte("ip"), Value: bencode.NewString("10.0.0.1")},
			{Key: []byte("port"), Value: bencode.NewInt(6882)},
		}),
	}
	peers, err := ParsePeersDict(list)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "10.0.0.1:6882", peers[0].Addr)
}

func TestParseAnnounceResponseFailureReason(t *testing.T) {
	body := bencode.Encode(bencode.NewDict([]bencode.KV{
		{Key: []byte("failure reason"), Value: bencode.NewString("bad request")},
	}))
	_, _, err := parseAnnounceResponse(body)
	assert.Error(t, err)
}

func TestParseAnnounceResponseNoPeersField(t *testing.T) {
	body := bencode.Encode(bencode.NewDict([]bencode.KV{
		{Key: []byte("interval"), Value: bencode.NewInt(900)},
	}))
	interval, peers, err := parseAnnounceResponse(body)
	require.NoError(t, err)
	assert.Equal(t, 900, interval)
	assert.Empty(t, peers)
}
