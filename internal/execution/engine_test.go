package execution

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gorouter/router/types"
)

var taker = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

func order(id string) *types.SignedOrder {
	return &types.SignedOrder{ID: id, UnsignedOrder: types.UnsignedOrder{Kind: types.OrderKindSeaportV16}}
}

func request(ids ...string) FillRequest {
	req := FillRequest{Options: types.FillOptions{Taker: taker}}
	for _, id := range ids {
		req.Items = append(req.Items, types.ExecutionItem{Order: order(id)})
	}
	return req
}

// stubPlanner 每个订单一笔交易（txPerOrder）或全部打包
type stubPlanner struct {
	txPerOrder bool
	err        error
	skipped    []types.SkippedItem
}

func (p *stubPlanner) Plan(_ context.Context, items []types.ExecutionItem, opts types.FillOptions) (*types.ExecutionPlan, error) {
	if p.err != nil {
		return nil, p.err
	}
	plan := &types.ExecutionPlan{ID: "plan", Mode: types.PlanBatched, Skipped: p.skipped, RevertIfIncomplete: opts.RevertIfIncomplete}
	if p.txPerOrder {
		for _, it := range items {
			plan.Transactions = append(plan.Transactions, types.Transaction{
				From: opts.Taker, Value: new(big.Int), Options: opts,
				Calls: []types.ModuleCall{{Items: []types.ExecutionItem{it}}},
			})
		}
		if len(items) > 1 {
			plan.Mode = types.PlanPerOrder
		}
		return plan, nil
	}
	plan.Transactions = []types.Transaction{{
		From: opts.Taker, Value: new(big.Int), Options: opts,
		Calls: []types.ModuleCall{{Items: items}},
	}}
	return plan, nil
}

// stubSubmitter 按订单 id 决定回滚，gate 非空时阻塞到关闭
type stubSubmitter struct {
	mu      sync.Mutex
	revert  map[string]bool
	missed  map[string]bool
	gate    chan struct{}
	entered chan struct{}
	txs     int
}

func (s *stubSubmitter) Submit(ctx context.Context, tx types.Transaction) (*types.Receipt, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++
	receipt := &types.Receipt{BlockNumber: uint64(s.txs)}
	for _, call := range tx.Calls {
		for _, it := range call.Items {
			switch {
			case s.revert[it.Order.ID]:
				return nil, &types.RevertError{Reason: "UnsuccessfulExecution()"}
			case s.missed[it.Order.ID]:
				receipt.Missed = append(receipt.Missed, it.Order.ID)
			default:
				receipt.Fills = append(receipt.Fills, types.Fill{OrderID: it.Order.ID, Amount: 1})
			}
		}
	}
	return receipt, nil
}

func TestFillStates(t *testing.T) {
	tests := []struct {
		name       string
		planner    *stubPlanner
		submitter  *stubSubmitter
		req        FillRequest
		wantStates []State
		wantFills  int
		wantErr    error
	}{
		{
			name:       "batched completed",
			planner:    &stubPlanner{},
			submitter:  &stubSubmitter{},
			req:        request("0x01", "0x02"),
			wantStates: []State{StateValidating, StatePlanning, StateBatched, StateSubmitted, StateCompleted},
			wantFills:  2,
		},
		{
			name:       "per order partially completed",
			planner:    &stubPlanner{txPerOrder: true},
			submitter:  &stubSubmitter{revert: map[string]bool{"0x02": true}},
			req:        request("0x01", "0x02", "0x03"),
			wantStates: []State{StateValidating, StatePlanning, StatePerOrder, StateSubmitted, StatePartiallyCompleted},
			wantFills:  2,
		},
		{
			name:       "missed on chain",
			planner:    &stubPlanner{},
			submitter:  &stubSubmitter{missed: map[string]bool{"0x02": true}},
			req:        request("0x01", "0x02"),
			wantStates: []State{StateValidating, StatePlanning, StateBatched, StateSubmitted, StatePartiallyCompleted},
			wantFills:  1,
		},
		{
			name:       "reverted",
			planner:    &stubPlanner{},
			submitter:  &stubSubmitter{revert: map[string]bool{"0x01": true}},
			req:        request("0x01", "0x02"),
			wantStates: []State{StateValidating, StatePlanning, StateBatched, StateSubmitted, StateReverted},
			wantErr:    types.ErrUnsuccessfulExecution,
		},
		{
			name:       "planning failed",
			planner:    &stubPlanner{err: types.ErrNoFillableOrders},
			submitter:  &stubSubmitter{},
			req:        request("0x01"),
			wantStates: []State{StateValidating, StatePlanning, StateFailed},
			wantErr:    types.ErrNoFillableOrders,
		},
		{
			name:       "validation failed",
			planner:    &stubPlanner{},
			submitter:  &stubSubmitter{},
			req:        FillRequest{Options: types.FillOptions{Taker: taker}},
			wantStates: []State{StateValidating, StateFailed},
			wantErr:    types.ErrInvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewFillEngine(tt.planner, tt.submitter)
			res, err := e.Fill(context.Background(), tt.req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, res)
			assert.Equal(t, tt.wantStates, res.Transitions)
			assert.Equal(t, tt.wantStates[len(tt.wantStates)-1], res.State)
			assert.True(t, res.State.Terminal())
			assert.Len(t, res.Fills, tt.wantFills)
		})
	}
}

func TestFillRevertIfIncompleteStopsAtFirstRevert(t *testing.T) {
	sub := &stubSubmitter{revert: map[string]bool{"0x01": true}}
	e := NewFillEngine(&stubPlanner{txPerOrder: true}, sub)
	req := request("0x01", "0x02")
	req.Options.RevertIfIncomplete = true

	res, err := e.Fill(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateReverted, res.State)
	assert.Equal(t, 1, sub.txs)
}

func TestFillSkippedMakesPartial(t *testing.T) {
	skipped := []types.SkippedItem{{
		Item:   types.ExecutionItem{Order: order("0x09")},
		Reason: types.NewUnfillable("0x09", types.ReasonExpired),
	}}
	e := NewFillEngine(&stubPlanner{skipped: skipped}, &stubSubmitter{})
	res, err := e.Fill(context.Background(), request("0x01"))
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyCompleted, res.State)
	assert.Equal(t, map[string]string{"0x09": "Expired"}, res.Skipped)
}

func TestFillDuplicateInFlight(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := NewFillEngine(&stubPlanner{}, sub)

	done := make(chan *FillResult, 1)
	go func() {
		res, _ := e.Fill(ctx, request("0x01", "0x02"))
		done <- res
	}()

	<-sub.entered

	// 同一组订单，顺序不同
	_, err := e.Fill(ctx, request("0x02", "0x01"))
	assert.ErrorIs(t, err, ErrDuplicateInFlight)

	close(sub.gate)
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, StateCompleted, res.State)

	// 完成后释放
	sub.entered = nil
	res, err = e.Fill(ctx, request("0x01", "0x02"))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
}

func TestFillIndependentRequestsConcurrently(t *testing.T) {
	sub := &stubSubmitter{}
	e := NewFillEngine(&stubPlanner{}, sub)

	ids := []string{"0x01", "0x02", "0x03", "0x04"}
	results := make([]*FillResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res, err := e.Fill(context.Background(), request(id))
			assert.NoError(t, err)
			results[i] = res
		}(i, id)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, StateCompleted, res.State)
		require.Len(t, res.Fills, 1)
		assert.Equal(t, ids[i], res.Fills[0].OrderID)
		assert.False(t, seen[res.ID])
		seen[res.ID] = true
	}
	assert.Equal(t, len(ids), sub.txs)
}

func TestFillUninitialized(t *testing.T) {
	var e *FillEngine
	_, err := e.Fill(context.Background(), request("0x01"))
	assert.Error(t, err)
}

func TestOrderSetKey(t *testing.T) {
	a := OrderSetKey(request("0xAB", "0x01").Items)
	b := OrderSetKey(request("0x01", "0xab").Items)
	assert.Equal(t, a, b)
	assert.Equal(t, "0x01,0xab", a)
	assert.Empty(t, OrderSetKey(nil))
}

func TestInFlightDeduperTTL(t *testing.T) {
	d := NewInFlightDeduper(20*time.Millisecond, 4)
	require.NoError(t, d.TryAcquire("k"))
	assert.ErrorIs(t, d.TryAcquire("k"), ErrDuplicateInFlight)
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, d.TryAcquire("k"))

	d.Release("k")
	assert.NoError(t, d.TryAcquire("k"))
	assert.NoError(t, d.TryAcquire(""))

	var nilDeduper *InFlightDeduper
	assert.NoError(t, nilDeduper.TryAcquire("k"))
}
