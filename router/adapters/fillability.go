package adapters

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

// terms 与协议无关的成交条款，由各适配器从订单参数中提取
type terms struct {
	maker         common.Address
	side          types.Side
	currency      common.Address
	token         types.TokenRef
	tokenID       *big.Int // nil 表示 criteria 订单
	tokenIDs      []*big.Int
	quantity      uint64
	total         *big.Int          // 整单价格，不含买方承担的费用
	fees          []types.FeeAmount // 整单费用
	buyerPaysFees bool
	expiration    int64
	nonce         *big.Int // 单笔 nonce，协议没有时为 nil
	masterNonce   *big.Int // 协议没有 master nonce 时为 nil
	operator      common.Address
	skipApproval  bool
}

// remainingShare 第 filled+1..filled+fill 个单位对应的金额
// floor(total×(filled+fill)/quantity) - floor(total×filled/quantity)，连续部分成交合计恰好等于 total
func remainingShare(total *big.Int, quantity, filled, fill uint64) *big.Int {
	if quantity == 0 || total == nil {
		return new(big.Int)
	}
	q := new(big.Int).SetUint64(quantity)
	upto := new(big.Int).Mul(total, new(big.Int).SetUint64(filled+fill))
	upto.Quo(upto, q)
	before := new(big.Int).Mul(total, new(big.Int).SetUint64(filled))
	before.Quo(before, q)
	return upto.Sub(upto, before)
}

// checkTerms 只读检查：过期 → 取消 → master nonce → 余额 → 授权
func checkTerms(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string, t terms, state ChainState) error {
	now, err := state.Now(ctx)
	if err != nil {
		return fmt.Errorf("读取区块时间失败: %w", err)
	}
	if t.expiration > 0 && now >= t.expiration {
		return types.NewUnfillable(orderID, types.ReasonExpired)
	}

	cancelled, err := state.IsCancelled(ctx, kind, exchange, orderID)
	if err != nil {
		return fmt.Errorf("读取取消状态失败: %w", err)
	}
	if cancelled {
		return types.NewUnfillable(orderID, types.ReasonCancelled)
	}
	if t.nonce != nil {
		used, err := state.IsNonceUsed(ctx, kind, exchange, t.maker, t.nonce)
		if err != nil {
			return fmt.Errorf("读取 nonce 状态失败: %w", err)
		}
		if used {
			return types.NewUnfillable(orderID, types.ReasonCancelled)
		}
	}
	filled, err := state.FilledAmount(ctx, kind, exchange, orderID)
	if err != nil {
		return fmt.Errorf("读取成交数量失败: %w", err)
	}
	if filled >= t.quantity {
		return types.NewUnfillable(orderID, types.ReasonCancelled)
	}
	if t.masterNonce != nil {
		current, err := state.MasterNonce(ctx, kind, exchange, t.maker)
		if err != nil {
			return fmt.Errorf("读取 master nonce 失败: %w", err)
		}
		if current.Cmp(t.masterNonce) != 0 {
			return types.NewUnfillable(orderID, types.ReasonNonceInvalid)
		}
	}

	remaining := t.quantity - filled
	if t.side == types.SideListing {
		held, err := state.NFTBalance(ctx, t.token, t.tokenID, t.maker)
		if err != nil {
			return fmt.Errorf("读取 NFT 余额失败: %w", err)
		}
		if held < remaining {
			return types.NewUnfillable(orderID, types.ReasonInsufficientBalance)
		}
		if !t.skipApproval {
			ok, err := state.IsApprovedForAll(ctx, t.token.Contract, t.maker, t.operator)
			if err != nil {
				return fmt.Errorf("读取 NFT 授权失败: %w", err)
			}
			if !ok {
				return types.NewUnfillable(orderID, types.ReasonNotApproved)
			}
		}
		return nil
	}

	need := remainingShare(t.total, t.quantity, filled, remaining)
	if t.buyerPaysFees {
		for _, f := range t.fees {
			need.Add(need, remainingShare(f.Amount, t.quantity, filled, remaining))
		}
	}
	balance, err := state.Balance(ctx, t.currency, t.maker)
	if err != nil {
		return fmt.Errorf("读取余额失败: %w", err)
	}
	if balance.Cmp(need) < 0 {
		return types.NewUnfillable(orderID, types.ReasonInsufficientBalance)
	}
	if !t.skipApproval && !types.IsNative(t.currency) {
		allowance, err := state.Allowance(ctx, t.currency, t.maker, t.operator)
		if err != nil {
			return fmt.Errorf("读取授权额度失败: %w", err)
		}
		if allowance.Cmp(need) < 0 {
			return types.NewUnfillable(orderID, types.ReasonNotApproved)
		}
	}
	return nil
}

// quoteTerms 计算一次部分成交的资金流向
func quoteTerms(orderID string, t terms, m *Matching, filled uint64) (*Settlement, error) {
	if m == nil {
		return nil, types.InvalidArgf("missing matching order")
	}
	fill, taker := m.Amount, m.Taker
	if fill == 0 {
		return nil, types.InvalidArgf("fill amount must be positive")
	}
	if filled+fill > t.quantity {
		return nil, types.InvalidArgf("fill %d exceeds remaining %d", fill, t.quantity-filled)
	}
	price := remainingShare(t.total, t.quantity, filled, fill)
	s := &Settlement{
		OrderID:  orderID,
		Fill:     fill,
		Currency: t.currency,
		Price:    price,
		Token:    t.token,
		TokenID:  m.TokenID,
	}
	if s.TokenID == nil {
		s.TokenID = t.tokenID
	}
	if t.side == types.SideListing {
		s.Buyer, s.Seller = taker, t.maker
	} else {
		s.Buyer, s.Seller = t.maker, taker
	}

	feeTotal := new(big.Int)
	var feePayments []Payment
	for _, f := range t.fees {
		amt := remainingShare(f.Amount, t.quantity, filled, fill)
		feeTotal.Add(feeTotal, amt)
		feePayments = append(feePayments, Payment{Recipient: f.Recipient, Amount: amt, Kind: f.Kind})
	}
	proceeds := new(big.Int).Set(price)
	if t.buyerPaysFees {
		s.BuyerCost = new(big.Int).Add(price, feeTotal)
	} else {
		s.BuyerCost = new(big.Int).Set(price)
		proceeds.Sub(proceeds, feeTotal)
		if proceeds.Sign() < 0 {
			return nil, types.InvalidArgf("fees %s exceed fill price %s", feeTotal, price)
		}
	}
	s.Payments = append([]Payment{{Recipient: s.Seller, Amount: proceeds}}, feePayments...)
	return s, nil
}

// matchTerms 推导对手单：criteria 订单需要 taker 指定 token
func matchTerms(kind types.OrderKind, orderID string, t terms, o MatchOverrides) (*Matching, error) {
	if o.Taker == (common.Address{}) {
		return nil, types.InvalidArgf("missing taker")
	}
	m := &Matching{
		OrderID:   orderID,
		Kind:      kind,
		Taker:     o.Taker,
		Recipient: o.Recipient,
		Amount:    o.Amount,
		TokenID:   t.tokenID,
	}
	if m.Recipient == (common.Address{}) {
		m.Recipient = o.Taker
	}
	if m.Amount == 0 {
		m.Amount = 1
	}
	if m.Amount > t.quantity {
		return nil, types.InvalidArgf("amount %d exceeds order quantity %d", m.Amount, t.quantity)
	}
	if t.side == types.SideListing {
		m.Side = types.SideBid
	} else {
		m.Side = types.SideListing
	}
	if t.tokenID == nil {
		if o.TokenID == nil {
			return nil, types.InvalidArgf("%s criteria order requires a token id", kind)
		}
		m.TokenID = new(big.Int).Set(o.TokenID)
		if len(t.tokenIDs) > 0 {
			proof, err := NewMerkleTree(t.tokenIDs).Proof(o.TokenID)
			if err != nil {
				return nil, err
			}
			m.Proof = proof
		}
	} else if o.TokenID != nil && o.TokenID.Cmp(t.tokenID) != 0 {
		return nil, types.InvalidArgf("token id %s does not match order token %s", o.TokenID, t.tokenID)
	}
	return m, nil
}

// signTyped 签名并确认签名者就是 maker
func signTyped(order *types.UnsignedOrder, key *ecdsa.PrivateKey, maker common.Address) (*types.SignedOrder, error) {
	if order == nil || order.TypedData == nil {
		return nil, types.InvalidArgf("order has no typed data")
	}
	if signer := signing.AddressOf(key); signer != maker {
		return nil, fmt.Errorf("%w: signer %s is not maker %s", types.ErrSignature, signer.Hex(), maker.Hex())
	}
	sig, hash, err := signing.SignTypedData(key, order.TypedData)
	if err != nil {
		return nil, err
	}
	return &types.SignedOrder{UnsignedOrder: *order, ID: hash.Hex(), Signature: sig}, nil
}

// verifyTyped 恢复签名者并与期望地址比较
func verifyTyped(order *types.SignedOrder, want common.Address) error {
	if len(order.Signature) == 0 {
		return fmt.Errorf("%w: order %s is not signed", types.ErrInvalidSignature, order.ID)
	}
	got, err := signing.Recover(order.TypedData, order.Signature)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: recovered %s, want %s", types.ErrInvalidSignature, got.Hex(), want.Hex())
	}
	return nil
}

// encodeTyped 订单的 EIP712 编码数据，作为模块调用中的订单字节
func encodeTyped(order *types.SignedOrder) ([]byte, error) {
	if order.TypedData == nil {
		return nil, types.InvalidArgf("order has no typed data")
	}
	td := order.TypedData
	data, err := td.EncodeData(td.PrimaryType, td.Message, 1)
	if err != nil {
		return nil, fmt.Errorf("编码订单失败: %w", err)
	}
	return data, nil
}
