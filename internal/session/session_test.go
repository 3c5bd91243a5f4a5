package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x00000000000000000000000000000000000000AA"

type recordingClearer struct {
	cleared []string
	err     error
}

func (r *recordingClearer) Clear(_ context.Context, w string) error {
	r.cleared = append(r.cleared, w)
	return r.err
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"checksummed", wallet, false},
		{"padded", "  " + wallet + " ", false},
		{"too short", "0x1234", true},
		{"ens name", "vitalik.eth", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(1, nil, nil)
			err := s.Connect(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, s.Connected())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "0x00000000000000000000000000000000000000aa", s.Address())
			assert.True(t, s.Connected())
		})
	}
}

func TestWatchAddressReplaysAndFollows(t *testing.T) {
	s := New(1, nil, nil)
	sub := s.WatchAddress()
	defer sub.Close()

	assert.Equal(t, "", <-sub.C())

	require.NoError(t, s.Connect(wallet))
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", <-sub.C())

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, "", <-sub.C())
}

func TestDisconnectClearsCache(t *testing.T) {
	clearer := &recordingClearer{}
	s := New(1, clearer, nil)
	require.NoError(t, s.Connect(wallet))

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000aa"}, clearer.cleared)
	assert.False(t, s.Connected())

	// Nothing to clear the second time.
	require.NoError(t, s.Disconnect(context.Background()))
	assert.Len(t, clearer.cleared, 1)
}

func TestDisconnectReportsClearFailure(t *testing.T) {
	clearer := &recordingClearer{err: errors.New("disk full")}
	s := New(1, clearer, nil)
	require.NoError(t, s.Connect(wallet))

	assert.Error(t, s.Disconnect(context.Background()))
	assert.False(t, s.Connected())
}

func TestSwitchChain(t *testing.T) {
	s := New(1, nil, nil)
	sub := s.WatchChain()
	defer sub.Close()
	assert.Equal(t, uint64(1), <-sub.C())

	s.SwitchChain(137)
	assert.Equal(t, uint64(137), s.ChainID())
	assert.Equal(t, uint64(137), <-sub.C())
}
