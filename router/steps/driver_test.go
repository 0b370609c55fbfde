package steps_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gorouter/router/indexer"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/steps"
	"github.com/betbot/gorouter/router/types"
)

const keyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeIndexer 记录签名回调；reject 非空时返回 {"error": reject}
type fakeIndexer struct {
	mu     sync.Mutex
	calls  []stepCall
	reject string
}

type stepCall struct {
	path      string
	signature string
	body      string
}

func (f *fakeIndexer) server(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/execute/bid/v5/save", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		f.mu.Lock()
		f.calls = append(f.calls, stepCall{path: c.Request.URL.Path, signature: c.Query("signature"), body: string(body)})
		reject := f.reject
		f.mu.Unlock()
		if reject != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": reject})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{{"orderId": "0xabc", "orderIndex": 0}}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeIndexer) recorded() []stepCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stepCall(nil), f.calls...)
}

// fakeBroadcaster 记录发送的交易
type fakeBroadcaster struct {
	sent []steps.TxRequest
	err  error
}

func (b *fakeBroadcaster) SendTransaction(_ context.Context, req steps.TxRequest) (*types.Receipt, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.sent = append(b.sent, req)
	return &types.Receipt{TxHash: common.BigToHash(big.NewInt(int64(len(b.sent)))), BlockNumber: uint64(len(b.sent))}, nil
}

// memJournal 内存版步骤记录
type memJournal struct {
	done map[string]string
}

func key(seq, step string, i int) string { return fmt.Sprintf("%s/%s/%d", seq, step, i) }

func (j *memJournal) IsComplete(_ context.Context, seq, step string, i int) (bool, error) {
	_, ok := j.done[key(seq, step, i)]
	return ok, nil
}

func (j *memJournal) MarkComplete(_ context.Context, seq, step string, i int, _ types.StepKind, result string) error {
	j.done[key(seq, step, i)] = result
	return nil
}

const signPayload = `{
	"signatureKind": "eip712",
	"domain": {"name": "Seaport", "version": "1.6", "chainId": 1, "verifyingContract": "0x0000000000000068F116a894984e2DB1123eB395"},
	"types": {"Order": [{"name": "maker", "type": "address"}, {"name": "price", "type": "uint256"}]},
	"value": {"maker": "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "price": "1000000000000000000"}
}`

func sequence(t *testing.T) *types.StepSequence {
	t.Helper()
	var sign types.SignPayload
	require.NoError(t, json.Unmarshal([]byte(signPayload), &sign))
	return &types.StepSequence{Steps: []types.Step{
		{
			ID:   "currency-approval",
			Kind: types.StepKindTransaction,
			Items: []types.StepItem{
				{Status: types.StepComplete, Data: &types.StepItemData{To: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Data: "0x01"}},
				{Status: types.StepIncomplete, Data: &types.StepItemData{
					From: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
					To:   "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
					Data: "0x095ea7b3",
				}},
			},
		},
		{
			ID:   "order-signature",
			Kind: types.StepKindSignature,
			Items: []types.StepItem{{Status: types.StepIncomplete, Data: &types.StepItemData{
				Sign: &sign,
				Post: &types.PostPayload{Endpoint: "/execute/bid/v5/save", Method: "POST", Body: json.RawMessage(`{"order":{"kind":"seaport-v1.6"}}`)},
			}}},
		},
	}}
}

func newDriver(t *testing.T, idx *fakeIndexer, b *fakeBroadcaster, opts ...steps.Option) *steps.Driver {
	t.Helper()
	k, err := signing.PrivateKeyFromHex(keyHex)
	require.NoError(t, err)
	client := indexer.New(idx.server(t).URL)
	return steps.NewDriver(k, b, client, opts...)
}

func TestRunProcessesStepsInOrder(t *testing.T) {
	idx, b := &fakeIndexer{}, &fakeBroadcaster{}
	seq := sequence(t)
	results, err := newDriver(t, idx, b).Run(context.Background(), seq)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "currency-approval", results[0].StepID)
	assert.Equal(t, "order-signature", results[1].StepID)
	saved, ok := results[1].Result.(*indexer.StepSaveResponse)
	require.True(t, ok)
	require.Len(t, saved.Results, 1)
	assert.Equal(t, "0xabc", saved.Results[0].OrderID)

	// complete 条目跳过，缺省 gas
	require.Len(t, b.sent, 1)
	assert.Equal(t, steps.DefaultGasLimit, b.sent[0].Gas)
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, b.sent[0].Data)

	calls := idx.recorded()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.JSONEq(t, `{"order":{"kind":"seaport-v1.6"}}`, call.body)
	td, err := signing.PayloadTypedData(seq.Steps[1].Items[0].Data.Sign)
	require.NoError(t, err)
	sig, err := hexutil.Decode(call.signature)
	require.NoError(t, err)
	signer, err := signing.Recover(td, sig)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), signer)
}

func TestRunSkipsCompleteSignatureItems(t *testing.T) {
	idx, b := &fakeIndexer{}, &fakeBroadcaster{}
	seq := sequence(t)
	seq.Steps[1].Items[0].Status = types.StepComplete

	results, err := newDriver(t, idx, b).Run(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "currency-approval", results[0].StepID)
	assert.Len(t, b.sent, 1)
	assert.Empty(t, idx.recorded())
}

func TestRunStepSaveError(t *testing.T) {
	idx, b := &fakeIndexer{reject: "Order already exists"}, &fakeBroadcaster{}
	results, err := newDriver(t, idx, b).Run(context.Background(), sequence(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStepSave))
	var saveErr *types.StepSaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, "order-signature", saveErr.StepID)
	assert.Contains(t, saveErr.Message, "Order already exists")
	// 之前的交易已经发出，不回滚也不重试
	assert.Len(t, results, 1)
	assert.Len(t, idx.recorded(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	idx, b := &fakeIndexer{}, &fakeBroadcaster{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := newDriver(t, idx, b).Run(ctx, sequence(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Empty(t, b.sent)
	assert.Empty(t, idx.recorded())
}

func TestRunBroadcastFailureStops(t *testing.T) {
	idx, b := &fakeIndexer{}, &fakeBroadcaster{err: &types.RevertError{Reason: "UnsuccessfulExecution()"}}
	_, err := newDriver(t, idx, b).Run(context.Background(), sequence(t))
	assert.ErrorIs(t, err, types.ErrUnsuccessfulExecution)
	assert.Empty(t, idx.recorded())
}

func TestRunSkipsJournaledItems(t *testing.T) {
	idx, b := &fakeIndexer{}, &fakeBroadcaster{}
	j := &memJournal{done: map[string]string{key("seq-1", "currency-approval", 1): "0x01"}}
	results, err := newDriver(t, idx, b, steps.WithJournal(j, "seq-1")).Run(context.Background(), sequence(t))
	require.NoError(t, err)
	assert.Empty(t, b.sent)
	require.Len(t, results, 1)
	assert.Contains(t, j.done, key("seq-1", "order-signature", 0))
}

func TestRunRejectsForeignSender(t *testing.T) {
	idx, b := &fakeIndexer{}, &fakeBroadcaster{}
	seq := sequence(t)
	seq.Steps[0].Items[1].Data.From = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	_, err := newDriver(t, idx, b).Run(context.Background(), seq)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Empty(t, b.sent)
}

func TestParseTxRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    types.StepItemData
		wantGas uint64
		wantVal int64
		wantErr bool
	}{
		{"defaults", types.StepItemData{To: "0x00000000000000000000000000000000000000aa"}, steps.DefaultGasLimit, 0, false},
		{"hex gas and value", types.StepItemData{To: "0x00000000000000000000000000000000000000aa", Gas: "0x5208", Value: "0x10"}, 21000, 16, false},
		{"decimal value", types.StepItemData{To: "0x00000000000000000000000000000000000000aa", Value: "1000"}, steps.DefaultGasLimit, 1000, false},
		{"bad target", types.StepItemData{To: "nope"}, 0, 0, true},
		{"bad data", types.StepItemData{To: "0x00000000000000000000000000000000000000aa", Data: "0xzz"}, 0, 0, true},
		{"negative value", types.StepItemData{To: "0x00000000000000000000000000000000000000aa", Value: "-1"}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := steps.ParseTxRequest(&tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGas, req.Gas)
			assert.Equal(t, tt.wantVal, req.Value.Int64())
		})
	}
}
