package checkpoints

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	h := &chainhash.Hash{0x01}
	tests := []struct {
		name    string
		cps     []Checkpoint
		lastTxs int64
		perDay  float64
		wantErr bool
	}{
		{name: "empty", perDay: 1},
		{name: "ascending", cps: []Checkpoint{{0, h}, {10, h}, {20, h}}, perDay: 1},
		{name: "duplicate height", cps: []Checkpoint{{0, h}, {10, h}, {10, h}}, perDay: 1, wantErr: true},
		{name: "descending", cps: []Checkpoint{{10, h}, {0, h}}, perDay: 1, wantErr: true},
		{name: "negative height", cps: []Checkpoint{{-1, h}}, perDay: 1, wantErr: true},
		{name: "nil hash", cps: []Checkpoint{{0, nil}}, perDay: 1, wantErr: true},
		{name: "negative txs", lastTxs: -1, perDay: 1, wantErr: true},
		{name: "zero rate", perDay: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.name, tt.cps, 0, tt.lastTxs, tt.perDay)
			if tt.wantErr {
				require.Error(t, err)
				var invalid InvalidRegistryErr
				assert.True(t, errors.As(err, &invalid))
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.cps), r.Len())
		})
	}
}

func TestNewRegistry_Copies(t *testing.T) {
	h := chainhash.Hash{0x01}
	cps := []Checkpoint{{5, &h}}
	r, err := NewRegistry("copy", cps, 0, 0, 1)
	require.NoError(t, err)

	h[0] = 0x02
	cps[0].Height = 6
	got, ok := r.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, byte(0x01), got[0])
}

func TestRegistry_LookupAndDescend(t *testing.T) {
	r := MainNetRegistry
	assert.Equal(t, 13, r.Len())

	h, ok := r.Lookup(12345)
	require.True(t, ok)
	assert.Equal(t, "981a7af4c51f1e6d7fca6b999f9dfc036a79a7fb3981caad39b05fbdb66b0dbd", h.String())

	_, ok = r.Lookup(12346)
	assert.False(t, ok)
	_, ok = r.Lookup(-1)
	assert.False(t, ok)
	_, ok = r.Lookup(1 << 30)
	assert.False(t, ok)

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, int32(97765), latest.Height)

	var heights []int32
	r.Descend(func(cp Checkpoint) bool {
		heights = append(heights, cp.Height)
		return cp.Height > 82345
	})
	assert.Equal(t, []int32{97765, 97385, 97384, 82345}, heights)
}

func TestBuiltinRegistries(t *testing.T) {
	assert.Equal(t, int64(1424789024), MainNetRegistry.LastCheckpointTime)
	assert.Equal(t, int64(98062), MainNetRegistry.TransactionsLastCheckpoint)
	assert.Equal(t, 1500.0, MainNetRegistry.TransactionsPerDay)

	assert.Equal(t, 1, TestNetRegistry.Len())
	assert.Equal(t, int64(1365458829), TestNetRegistry.LastCheckpointTime)
	assert.Equal(t, int64(547), TestNetRegistry.TransactionsLastCheckpoint)
	assert.Equal(t, 576.0, TestNetRegistry.TransactionsPerDay)

	h, ok := TestNetRegistry.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "b44cc80bfa2a5629c618d5a3c07f2400462d781c1a289379576dbb4fc29618c5", h.String())
}

func TestParseNetwork(t *testing.T) {
	for name, want := range map[string]Network{
		"":         MainNet,
		"main":     MainNet,
		"mainnet":  MainNet,
		"test":     TestNet,
		"testnet":  TestNet,
		"testnet3": TestNet,
		" TestNet": TestNet,
	} {
		got, err := ParseNetwork(name)
		assert.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseNetwork("regtest")
	assert.Error(t, err)

	assert.Same(t, MainNetRegistry, RegistryFor(MainNet))
	assert.Same(t, TestNetRegistry, RegistryFor(TestNet))
	assert.Equal(t, "testnet3", TestNet.String())
}

func TestNewFileConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conf.json")
	require.NoError(t, ioutil.WriteFile(file, []byte(`{"net_type":"test","index_db_path":"./index","log_level":1}`), 0644))

	conf, err := NewFileConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "./index", conf.IndexDBPath)
	assert.Equal(t, 1, conf.LogLevel)

	sc, err := conf.ServiceConfig()
	require.NoError(t, err)
	assert.Equal(t, TestNet, sc.Network)
	assert.True(t, sc.Enabled)

	require.NoError(t, ioutil.WriteFile(file, []byte(`{"checkpoints":false}`), 0644))
	conf, err = NewFileConfig(file)
	require.NoError(t, err)
	sc, err = conf.ServiceConfig()
	require.NoError(t, err)
	assert.Equal(t, MainNet, sc.Network)
	assert.False(t, sc.Enabled)

	_, err = NewFileConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
