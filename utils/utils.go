package utils

import (
	"bytes"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	SleepTime time.Duration = 10
)

type Request struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      int           `json:"id"`
}

type Response struct {
	Result json.RawMessage   `json:"result"`
	Error  *btcjson.RPCError `json:"error"`
	Id     int               `json:"id"`
}

// ChainTxStats is the subset of the getchaintxstats result we read.
type ChainTxStats struct {
	Time    int64 `json:"time"`
	TxCount int64 `json:"txcount"`
}

// RestCli is a JSON-RPC client for a bitcoind compatible node.
type RestCli struct {
	Addr string
	Cli  *http.Client
}

func NewRestCli(addr, user, pwd string) *RestCli {
	return &RestCli{
		Cli: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   5,
				DisableKeepAlives:     false,
				IdleConnTimeout:       time.Second * 300,
				ResponseHeaderTimeout: time.Second * 300,
				TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
				Proxy: func(req *http.Request) (*url.URL, error) {
					req.SetBasicAuth(user, pwd)
					return nil, nil
				},
			},
			Timeout: time.Second * 300,
		},
		Addr: addr,
	}
}

func (cli *RestCli) sendPostReq(reqBody []byte) (*Response, error) {
	req, err := http.NewRequest("POST", cli.Addr, bytes.NewReader(reqBody))
	if err != nil {
		return nil, NetErr{fmt.Errorf("failed to new request: %v", err)}
	}
	req.Close = true
	req.Header.Set("Content-Type", "application/json")

	resp, err := cli.Cli.Do(req)
	if err != nil {
		return nil, NetErr{fmt.Errorf("failed to post: %v", err)}
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, NetErr{fmt.Errorf("read response body error:%s", err)}
	}

	response := new(Response)
	err = json.Unmarshal(body, &response)
	if err != nil {
		return nil, NetErr{fmt.Errorf("failed to unmarshal response: %v", err)}
	}
	return response, nil
}

// call sends method with params and decodes the result into res.
func (cli *RestCli) call(method string, res interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req, err := json.Marshal(Request{
		Jsonrpc: "1.0",
		Method:  method,
		Params:  params,
		Id:      1,
	})
	if err != nil {
		return fmt.Errorf("[%s] failed to marshal request: %v", method, err)
	}

	resp, err := cli.sendPostReq(req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		if resp.Error.Code == btcjson.ErrRPCInWarmup {
			return NeedToRetryErr{fmt.Errorf("[%s] node is warming up: %v", method, resp.Error.Message)}
		}
		if resp.Error.Code == btcjson.ErrRPCMethodNotFound.Code {
			return UnsupportedMethodErr{Method: method}
		}
		return fmt.Errorf("[%s] response shows failure: code:%d; %v", method, resp.Error.Code, resp.Error.Message)
	}
	if err := json.Unmarshal(resp.Result, res); err != nil {
		return fmt.Errorf("[%s] failed to decode result: %v", method, err)
	}
	return nil
}

func (cli *RestCli) GetBlockCount() (int32, error) {
	var count int32
	if err := cli.call("getblockcount", &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (cli *RestCli) GetBlockHash(height int32) (*chainhash.Hash, error) {
	var str string
	if err := cli.call("getblockhash", &str, height); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(str)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hash %s: %v", str, err)
	}
	return hash, nil
}

func (cli *RestCli) GetHeader(hash *chainhash.Hash) (*wire.BlockHeader, error) {
	var str string
	if err := cli.call("getblockheader", &str, hash.String(), false); err != nil {
		return nil, err
	}
	if str == "" {
		return nil, errors.New("empty header")
	}
	hb, err := hex.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("failed to decode string: %v", err)
	}
	header := &wire.BlockHeader{}
	if err := header.BtcDecode(bytes.NewBuffer(hb), wire.ProtocolVersion, wire.LatestEncoding); err != nil {
		return nil, fmt.Errorf("failed to decode header: %v", err)
	}

	return header, nil
}

// GetChainTxStats returns the cumulative transaction count up to and including
// the block.
func (cli *RestCli) GetChainTxStats(hash *chainhash.Hash) (*ChainTxStats, error) {
	stats := new(ChainTxStats)
	if err := cli.call("getchaintxstats", stats, nil, hash.String()); err != nil {
		return nil, err
	}
	return stats, nil
}

type NeedToRetryErr struct {
	Err error
}

func (err NeedToRetryErr) Error() string {
	return err.Err.Error()
}

type NetErr struct {
	Err error
}

func (err NetErr) Error() string {
	return err.Err.Error()
}

// UnsupportedMethodErr is returned by nodes whose RPC interface predates a
// method, e.g. getblockheader (0.12) or getchaintxstats (0.15).
type UnsupportedMethodErr struct {
	Method string
}

func (err UnsupportedMethodErr) Error() string {
	return fmt.Sprintf("node does not support %s, a bitcoind 0.15+ compatible RPC interface is required", err.Method)
}

// Retryable reports whether err is worth another attempt after a pause.
func Retryable(err error) bool {
	switch err.(type) {
	case NetErr, NeedToRetryErr:
		return true
	}
	return false
}

func Wait(dura time.Duration) {
	t := time.NewTimer(dura)
	<-t.C
	t.Stop()
}
