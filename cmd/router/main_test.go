package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gorouter/internal/metrics"
	"github.com/betbot/gorouter/router/indexer"
	"github.com/betbot/gorouter/router/types"
)

const (
	takerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	makerKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	weth     = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	nft      = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	referrer = "0x00000000000000000000000000000000000000Ee"
)

var taker = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// setEnv 隔离外部环境变量，DryRun 不连接节点
func setEnv(t *testing.T, indexerURL string) {
	t.Helper()
	for _, k := range []string{"CHAIN_ID", "RPC_URL", "MNEMONIC", "DERIVATION_PATH", "SECRET_DB", "SECRET_KEY", "SIGNER_NAME",
		"ORDERBOOK_FEE_RECIPIENT", "ORDERBOOK_FEE_BPS", "LOG_FILE", "ROUTER_CONFIG"} {
		t.Setenv(k, "")
	}
	t.Setenv("INDEXER_URL", indexerURL)
	t.Setenv("PRIVATE_KEY", takerKey)
	t.Setenv("DRY_RUN", "true")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DEPLOYMENTS_FILE", filepath.Join(t.TempDir(), "deployments.json"))
	t.Setenv("JOURNAL_DB", filepath.Join(t.TempDir(), "journal.db"))
}

func parseBid(t *testing.T, args []string, now time.Time) (*indexer.BidRequest, string, error) {
	t.Helper()
	var o bidOptions
	fs := pflag.NewFlagSet("bid", pflag.ContinueOnError)
	o.bind(fs)
	require.NoError(t, fs.Parse(args))
	return o.request(taker, now)
}

func parseFill(t *testing.T, name string, args []string) (*indexer.FillRequest, string, error) {
	t.Helper()
	var o fillOptions
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	o.bind(fs)
	require.NoError(t, fs.Parse(args))
	return o.request(name, taker)
}

func TestBidRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req, id, err := parseBid(t, []string{
		"--kind", "payment-processor-v2",
		"--token", nft,
		"--price", "0.25",
		"--currency", weth,
		"--quantity", "3",
		"--standard", "erc1155",
		"--fee", referrer + ":100",
		"--royalties=false",
		"--expiration", "1h",
	}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, strings.ToLower(taker.Hex()), req.Maker)
	require.Len(t, req.Params, 1)
	p := req.Params[0]
	assert.Equal(t, "payment-processor-v2", p.OrderKind)
	assert.Equal(t, "250000000000000000", p.WeiPrice)
	assert.Equal(t, uint64(3), p.Quantity)
	assert.Equal(t, common.HexToAddress(nft).Hex(), p.Collection)
	assert.Equal(t, common.HexToAddress(weth).Hex(), p.Currency)
	assert.Equal(t, []string{strings.ToLower(referrer) + ":100"}, p.Fees)
	assert.False(t, p.AutomatedRoyalties)
	assert.Equal(t, "1700003600", p.Expiration)

	_, resumed, err := parseBid(t, []string{"--token", nft + ":1", "--price", "1", "--currency", weth, "--resume", "seq-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, "seq-1", resumed)
}

func TestBidRequestRejectsBadInput(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing price", []string{"--token", nft}, types.ErrInvalidArgument},
		{"bad kind", []string{"--kind", "opensea", "--token", nft, "--price", "1"}, types.ErrUnsupportedKind},
		{"bad token", []string{"--token", "0x12", "--price", "1"}, types.ErrInvalidArgument},
		{"erc721 quantity", []string{"--token", nft + ":1", "--price", "1", "--quantity", "2"}, types.ErrInvalidArgument},
		{"bad fee", []string{"--token", nft, "--price", "1", "--fee", referrer + ":20000"}, types.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseBid(t, tt.args, now)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFillRequest(t *testing.T) {
	req, _, err := parseFill(t, "buy", []string{
		"--token", nft + ":1," + nft + ":2",
		"--order", "0xorder",
		"--partial",
		"--fee-on-top", referrer + ":1000",
	})
	require.NoError(t, err)
	require.Len(t, req.Items, 3)
	assert.Equal(t, strings.ToLower(nft)+":2", req.Items[1].Token)
	assert.Equal(t, "0xorder", req.Items[2].OrderID)
	assert.True(t, req.Partial)
	assert.Equal(t, []string{referrer + ":1000"}, req.FeesOnTop)

	_, _, err = parseFill(t, "sell", nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

// fakeIndexer 返回一个 transaction + signature 的步骤序列
type fakeIndexer struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (f *fakeIndexer) record(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[c.Request.URL.Path] = string(body)
	if sig := c.Query("signature"); sig != "" {
		f.bodies["signature"] = sig
	}
}

func (f *fakeIndexer) get(k string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[k]
}

func (f *fakeIndexer) server(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/execute/bid/v5", func(c *gin.Context) {
		f.record(c)
		c.Data(http.StatusOK, "application/json", []byte(`{"steps": [
			{"id": "currency-approval", "kind": "transaction", "items": [
				{"status": "incomplete", "data": {"from": "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "to": "`+weth+`", "data": "0x095ea7b3"}}
			]},
			{"id": "order-signature", "kind": "signature", "items": [
				{"status": "incomplete", "data": {
					"sign": {"signatureKind": "eip191", "message": "0x1234"},
					"post": {"endpoint": "/order/v4", "method": "POST", "body": {"order": {"kind": "seaport-v1.6"}}}
				}}
			]}
		]}`))
	})
	r.GET("/debug/reset", func(c *gin.Context) {
		f.record(c)
		c.Status(http.StatusOK)
	})
	r.POST("/order/v4", func(c *gin.Context) {
		f.record(c)
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{{"orderId": "0xabc", "orderIndex": 0}}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunBidDryRun(t *testing.T) {
	idx := &fakeIndexer{bodies: map[string]string{}}
	setEnv(t, idx.server(t).URL)

	before := metrics.StepItemsDone.Value()
	var stdout, stderr bytes.Buffer
	code := run([]string{"bid", "--token", nft, "--price", "0.1", "--currency", weth}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.GreaterOrEqual(t, metrics.StepItemsDone.Value(), before+2)

	var bid map[string]any
	require.NoError(t, json.Unmarshal([]byte(idx.get("/execute/bid/v5")), &bid))
	assert.Equal(t, strings.ToLower(taker.Hex()), bid["maker"])
	assert.NotEmpty(t, idx.get("signature"))
	assert.JSONEq(t, `{"order": {"kind": "seaport-v1.6"}}`, idx.get("/order/v4"))
	assert.Contains(t, stdout.String(), "sequence: ")
	assert.Contains(t, stdout.String(), `"step": "order-signature"`)
}

func TestRunDebugReset(t *testing.T) {
	idx := &fakeIndexer{bodies: map[string]string{}}
	setEnv(t, idx.server(t).URL)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"debug", "reset"}, &stdout, &stderr), stderr.String())
	idx.mu.Lock()
	_, called := idx.bodies["/debug/reset"]
	idx.mu.Unlock()
	assert.True(t, called)
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "deployments")
	assert.Equal(t, 2, run([]string{"launch"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "launch"`)
	assert.Equal(t, 2, run([]string{"bid", "--nope"}, &stdout, &stderr))
}

const fillConfig = `
router: "0x00000000000000000000000000000000000000f0"
exchanges:
  seaport-v1.6:
    exchange: "0x0000000000000068F116a894984e2DB1123eB395"
    module: "0x00000000000000000000000000000000000000a1"
`

const fillScenario = `
revert_if_incomplete: true
orders:
  - kind: seaport-v1.6
    side: listing
    maker_key: "` + makerKey + `"
    token: "` + nft + `:1"
    price: "1"
  - kind: seaport-v1.6
    side: listing
    maker_key: "` + makerKey + `"
    token: "` + nft + `:2"
    price: "0.5"
    fees_on_top: ["` + referrer + `:100"]
`

func TestRunFillDryRun(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "router.yaml")
	scPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fillConfig), 0o644))
	require.NoError(t, os.WriteFile(scPath, []byte(fillScenario), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "fill", "--scenario", scPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var out fillOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "Completed", out.State)
	assert.Len(t, out.Fills, 2)
	assert.Len(t, out.Receipts, 1)
	assert.Empty(t, out.Error)
}

func TestRunFillRequiresRouter(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	scPath := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(scPath, []byte(fillScenario), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"fill", "--scenario", scPath}, &stdout, &stderr))
}

func TestDeploymentsNeedNode(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"deployments", "list"}, &stdout, &stderr), stderr.String())
	assert.Equal(t, "null\n", stdout.String())
	assert.Equal(t, 1, run([]string{"deployments", "deploy", "--contract", "X"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), errNeedsNode.Error())
}
