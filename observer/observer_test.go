package observer

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	checkpoints "github.com/evdatsion/axf-checkpoints"
	"github.com/evdatsion/axf-checkpoints/db"
	"github.com/evdatsion/axf-checkpoints/metrics"
	"github.com/evdatsion/axf-checkpoints/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	USER = "test"
	PWD  = "test"

	HASH1804   = "257e0ef983e245d26972b4effc959e8c5e819322d73dfce347fc7baf3c845a91"
	HASH1805   = "32297a88e4f3bef3bcbdd22a2eef19b4671c4f3205f9483ba6e6def114ba6907"
	HEADER1804 = "0000002050c2f32c30615106cc58b01352a13e6f309d7e6f142ccbe58d37a709f81a3f4739825ad49375ac5ff5fc292df9ed518124035f4edcf9b48d0aaf49b29ef7770ef410415effff7f2000000000"
	HEADER1805 = "00000020915a843caf7bfc47e3fc3dd72293815e8c9e95fcefb47269d245e283f90e7e25062e6b40a9be5a5c1590dcff3d9e0a7cb80df890227a9b6c3989ebb00ef840051b11415effff7f2000000000"
	TIME1805   = 1581322523
	WRONGHASH  = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
)

func startMockBtcServer(t *testing.T) string {
	ms := httptest.NewServer(http.HandlerFunc(handleReq))
	t.Cleanup(ms.Close)
	return ms.URL
}

func handleReq(w http.ResponseWriter, r *http.Request) {
	rb, _ := ioutil.ReadAll(r.Body)
	req := new(utils.Request)
	_ = json.Unmarshal(rb, req)

	var res []byte
	switch req.Method {
	case "getblockcount":
		res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, 1805, nil)
	case "getblockhash":
		if req.Params[0].(float64) == 1804 {
			res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, HASH1804, nil)
		} else {
			res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, HASH1805, nil)
		}
	case "getblockheader":
		if req.Params[0].(string) == HASH1804 {
			res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, HEADER1804, nil)
		} else {
			res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, HEADER1805, nil)
		}
	case "getchaintxstats":
		if req.Params[1].(string) == HASH1804 {
			res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, map[string]interface{}{"time": 1581322484, "txcount": 3610}, nil)
		} else {
			res, _ = btcjson.MarshalResponse(btcjson.RpcVersion1, 1, map[string]interface{}{"time": TIME1805, "txcount": 3612}, nil)
		}
	default:
		fmt.Fprint(w, "wrong method")
		return
	}
	w.Write(res)
}

func mustHash(t *testing.T, s string) *chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	require.NoError(t, err)
	return h
}

func newService(t *testing.T, at1804 string) *checkpoints.Service {
	reg, err := checkpoints.NewRegistry("regtest", []checkpoints.Checkpoint{
		{Height: 1804, Hash: mustHash(t, at1804)},
		{Height: 1805, Hash: mustHash(t, HASH1805)},
		{Height: 2000, Hash: mustHash(t, WRONGHASH)},
	}, TIME1805, 3612, 1000)
	require.NoError(t, err)
	return checkpoints.NewService(checkpoints.DefaultConfig(),
		checkpoints.WithRegistry(reg),
		checkpoints.WithClock(func() time.Time { return time.Unix(TIME1805, 0) }))
}

func TestAuditor_Audit(t *testing.T) {
	cli := utils.NewRestCli(startMockBtcServer(t), USER, PWD)
	m, err := metrics.New(prometheus.NewRegistry(), "regtest")
	require.NoError(t, err)

	a := NewAuditor(nil, cli, newService(t, HASH1804), nil, m)
	report, err := a.Audit()
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, int32(1805), report.NodeHeight)
	assert.Equal(t, []int32{1804, 1805}, report.Matched)
	assert.Equal(t, []int32{2000}, report.Skipped)
	assert.Equal(t, "node height 1805: 2 matched, 0 mismatched, 1 skipped", report.String())
}

func TestAuditor_AuditMismatch(t *testing.T) {
	cli := utils.NewRestCli(startMockBtcServer(t), USER, PWD)
	a := NewAuditor(nil, cli, newService(t, WRONGHASH), nil, nil)

	report, err := a.Audit()
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Equal(t, 1, len(report.Mismatched))
	assert.Equal(t, int32(1804), report.Mismatched[0].Height)
	assert.Equal(t, HASH1804, report.Mismatched[0].Got.String())
	assert.Equal(t, WRONGHASH, report.Mismatched[0].Want.String())
	assert.Equal(t, []int32{1805}, report.Matched)
}

func TestAuditor_AuditDisabled(t *testing.T) {
	cli := utils.NewRestCli(startMockBtcServer(t), USER, PWD)
	svc := checkpoints.NewService(checkpoints.Config{Enabled: false},
		checkpoints.WithRegistry(newService(t, WRONGHASH).Registry()))
	a := NewAuditor(nil, cli, svc, nil, nil)

	report, err := a.Audit()
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestAuditor_IndexCheckpoints(t *testing.T) {
	cli := utils.NewRestCli(startMockBtcServer(t), USER, PWD)
	index, err := db.NewIndexDB(t.TempDir())
	require.NoError(t, err)
	defer index.Close()

	a := NewAuditor(&AuditorConfig{}, cli, newService(t, HASH1804), index, nil)
	n, err := a.IndexCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e, err := index.GetEntry(*mustHash(t, HASH1805))
	require.NoError(t, err)
	assert.Equal(t, int32(1805), e.Height)
	assert.Equal(t, int64(3612), e.ChainTx)
	assert.Equal(t, int64(TIME1805), e.Timestamp)

	st, err := a.Status()
	require.NoError(t, err)
	require.NotNil(t, st.LastCheckpoint)
	assert.Equal(t, int32(1805), st.LastCheckpoint.Height)
	assert.Equal(t, int32(1805), st.Tip.Height)
	assert.Equal(t, int32(2000), st.TotalBlocks)
	assert.Equal(t, 1.0, st.Progress)

	es, err := a.Entries()
	require.NoError(t, err)
	require.Equal(t, 2, len(es))
	assert.Equal(t, int32(1804), es[0].Height)
	assert.Equal(t, HASH1805, es[1].Hash.String())

	_, err = NewAuditor(nil, cli, newService(t, HASH1804), nil, nil).Entries()
	assert.Error(t, err)
}

func TestAuditor_IndexCheckpointsSkipsForgedBlocks(t *testing.T) {
	cli := utils.NewRestCli(startMockBtcServer(t), USER, PWD)
	index, err := db.NewIndexDB(t.TempDir())
	require.NoError(t, err)
	defer index.Close()

	a := NewAuditor(nil, cli, newService(t, WRONGHASH), index, nil)
	n, err := a.IndexCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = index.GetEntry(*mustHash(t, HASH1804))
	assert.Equal(t, db.ErrNotFound, err)
}

func TestAuditor_StatusEmptyIndex(t *testing.T) {
	index, err := db.NewIndexDB(t.TempDir())
	require.NoError(t, err)
	defer index.Close()

	a := NewAuditor(nil, nil, newService(t, HASH1804), index, nil)
	st, err := a.Status()
	require.NoError(t, err)
	assert.Nil(t, st.Tip)
	assert.Nil(t, st.LastCheckpoint)
	assert.Equal(t, 0.0, st.Progress)

	_, err = NewAuditor(nil, nil, newService(t, HASH1804), nil, nil).Status()
	assert.Error(t, err)
}
