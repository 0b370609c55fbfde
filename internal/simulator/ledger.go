// Package simulator 内存链：账本 + 路由合约执行语义，用于测试和 dry-run
package simulator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/gorouter/router/types"
)

type state struct {
	now          int64
	native       map[common.Address]*big.Int
	erc20        map[common.Address]map[common.Address]*big.Int                    // token → owner
	allowances   map[common.Address]map[common.Address]map[common.Address]*big.Int // token → owner → spender
	owners721    map[common.Address]map[string]common.Address                      // contract → tokenId
	balances1155 map[common.Address]map[string]map[common.Address]uint64           // contract → tokenId → owner
	approvals    map[common.Address]map[common.Address]map[common.Address]bool     // contract → owner → operator
	masterNonces map[types.OrderKind]map[common.Address]*big.Int
	usedNonces   map[types.OrderKind]map[common.Address]map[string]bool
	cancelled    map[types.OrderKind]map[string]bool
	filled       map[types.OrderKind]map[string]uint64
}

func newState(now int64) *state {
	return &state{
		now:          now,
		native:       make(map[common.Address]*big.Int),
		erc20:        make(map[common.Address]map[common.Address]*big.Int),
		allowances:   make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		owners721:    make(map[common.Address]map[string]common.Address),
		balances1155: make(map[common.Address]map[string]map[common.Address]uint64),
		approvals:    make(map[common.Address]map[common.Address]map[common.Address]bool),
		masterNonces: make(map[types.OrderKind]map[common.Address]*big.Int),
		usedNonces:   make(map[types.OrderKind]map[common.Address]map[string]bool),
		cancelled:    make(map[types.OrderKind]map[string]bool),
		filled:       make(map[types.OrderKind]map[string]uint64),
	}
}

func cloneBig[K comparable](m map[K]*big.Int) map[K]*big.Int {
	out := make(map[K]*big.Int, len(m))
	for k, v := range m {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func cloneFlat[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone 深拷贝，用于交易回滚
func (s *state) clone() *state {
	c := newState(s.now)
	for k, v := range s.native {
		c.native[k] = new(big.Int).Set(v)
	}
	for token, owners := range s.erc20 {
		c.erc20[token] = cloneBig(owners)
	}
	for token, owners := range s.allowances {
		c.allowances[token] = make(map[common.Address]map[common.Address]*big.Int, len(owners))
		for owner, spenders := range owners {
			c.allowances[token][owner] = cloneBig(spenders)
		}
	}
	for contract, owners := range s.owners721 {
		c.owners721[contract] = cloneFlat(owners)
	}
	for contract, ids := range s.balances1155 {
		c.balances1155[contract] = make(map[string]map[common.Address]uint64, len(ids))
		for id, owners := range ids {
			c.balances1155[contract][id] = cloneFlat(owners)
		}
	}
	for contract, owners := range s.approvals {
		c.approvals[contract] = make(map[common.Address]map[common.Address]bool, len(owners))
		for owner, ops := range owners {
			c.approvals[contract][owner] = cloneFlat(ops)
		}
	}
	for kind, makers := range s.masterNonces {
		c.masterNonces[kind] = cloneBig(makers)
	}
	for kind, makers := range s.usedNonces {
		c.usedNonces[kind] = make(map[common.Address]map[string]bool, len(makers))
		for maker, nonces := range makers {
			c.usedNonces[kind][maker] = cloneFlat(nonces)
		}
	}
	for kind, ids := range s.cancelled {
		c.cancelled[kind] = cloneFlat(ids)
	}
	for kind, ids := range s.filled {
		c.filled[kind] = cloneFlat(ids)
	}
	return c
}

// Ledger 线程安全的内存账本，实现 adapters.ChainState
type Ledger struct {
	mu sync.RWMutex
	st *state
}

// NewLedger 创建账本，now 为区块时间（unix 秒）
func NewLedger(now int64) *Ledger {
	return &Ledger{st: newState(now)}
}

// SetTime 设置区块时间
func (l *Ledger) SetTime(now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.now = now
}

// FundNative 增加原生币余额
func (l *Ledger) FundNative(owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.addNative(owner, amount)
}

// FundERC20 增加 ERC20 余额
func (l *Ledger) FundERC20(token, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.addERC20(token, owner, amount)
}

// ApproveERC20 设置 ERC20 授权额度
func (l *Ledger) ApproveERC20(token, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owners, ok := l.st.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		l.st.allowances[token] = owners
	}
	if owners[owner] == nil {
		owners[owner] = make(map[common.Address]*big.Int)
	}
	owners[owner][spender] = new(big.Int).Set(amount)
}

// Mint721 铸造 ERC721
func (l *Ledger) Mint721(contract common.Address, tokenID *big.Int, owner common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.owners721[contract] == nil {
		l.st.owners721[contract] = make(map[string]common.Address)
	}
	l.st.owners721[contract][tokenID.String()] = owner
}

// Mint1155 铸造 ERC1155
func (l *Ledger) Mint1155(contract common.Address, tokenID *big.Int, owner common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.add1155(contract, tokenID, owner, amount)
}

// SetApprovalForAll 设置 NFT 授权
func (l *Ledger) SetApprovalForAll(contract, owner, operator common.Address, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.approvals[contract] == nil {
		l.st.approvals[contract] = make(map[common.Address]map[common.Address]bool)
	}
	if l.st.approvals[contract][owner] == nil {
		l.st.approvals[contract][owner] = make(map[common.Address]bool)
	}
	l.st.approvals[contract][owner][operator] = approved
}

// IncrementMasterNonce 作废 maker 在该协议下的全部旧订单
func (l *Ledger) IncrementMasterNonce(kind types.OrderKind, maker common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.masterNonces[kind] == nil {
		l.st.masterNonces[kind] = make(map[common.Address]*big.Int)
	}
	cur := l.st.masterNonces[kind][maker]
	if cur == nil {
		cur = new(big.Int)
	}
	l.st.masterNonces[kind][maker] = new(big.Int).Add(cur, big.NewInt(1))
}

// UseNonce 标记单笔 nonce 已使用
func (l *Ledger) UseNonce(kind types.OrderKind, maker common.Address, nonce *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.usedNonces[kind] == nil {
		l.st.usedNonces[kind] = make(map[common.Address]map[string]bool)
	}
	if l.st.usedNonces[kind][maker] == nil {
		l.st.usedNonces[kind][maker] = make(map[string]bool)
	}
	l.st.usedNonces[kind][maker][nonce.String()] = true
}

// Cancel 链上取消订单
func (l *Ledger) Cancel(kind types.OrderKind, orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.cancelled[kind] == nil {
		l.st.cancelled[kind] = make(map[string]bool)
	}
	l.st.cancelled[kind][orderID] = true
}

// NativeBalance 原生币余额
func (l *Ledger) NativeBalance(owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.nativeOf(owner)
}

// ERC20Balance ERC20 余额
func (l *Ledger) ERC20Balance(token, owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.erc20Of(token, owner)
}

// OwnerOf ERC721 持有人
func (l *Ledger) OwnerOf(contract common.Address, tokenID *big.Int) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.owners721[contract][tokenID.String()]
}

// Balance1155 ERC1155 余额
func (l *Ledger) Balance1155(contract common.Address, tokenID *big.Int, owner common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.balances1155[contract][tokenID.String()][owner]
}

// Filled 订单已成交数量
func (l *Ledger) Filled(kind types.OrderKind, orderID string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.filled[kind][orderID]
}

// --- adapters.ChainState ---
// state 自身实现 ChainState（不加锁，供执行期间使用），Ledger 加读锁后转发

func (s *state) Now(context.Context) (int64, error) { return s.now, nil }

func (s *state) MasterNonce(_ context.Context, kind types.OrderKind, _, maker common.Address) (*big.Int, error) {
	if v := s.masterNonces[kind][maker]; v != nil {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (s *state) IsNonceUsed(_ context.Context, kind types.OrderKind, _, maker common.Address, nonce *big.Int) (bool, error) {
	return s.usedNonces[kind][maker][nonce.String()], nil
}

func (s *state) IsCancelled(_ context.Context, kind types.OrderKind, _ common.Address, orderID string) (bool, error) {
	return s.cancelled[kind][orderID], nil
}

func (s *state) FilledAmount(_ context.Context, kind types.OrderKind, _ common.Address, orderID string) (uint64, error) {
	return s.filled[kind][orderID], nil
}

func (s *state) Balance(_ context.Context, currency, owner common.Address) (*big.Int, error) {
	if types.IsNative(currency) {
		return s.nativeOf(owner), nil
	}
	return s.erc20Of(currency, owner), nil
}

func (s *state) Allowance(_ context.Context, currency, owner, spender common.Address) (*big.Int, error) {
	if v := s.allowances[currency][owner][spender]; v != nil {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (s *state) NFTBalance(_ context.Context, token types.TokenRef, tokenID *big.Int, owner common.Address) (uint64, error) {
	return s.nftBalance(token, tokenID, owner), nil
}

func (s *state) IsApprovedForAll(_ context.Context, contract, owner, operator common.Address) (bool, error) {
	return s.approvals[contract][owner][operator], nil
}

func (l *Ledger) Now(ctx context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.Now(ctx)
}

func (l *Ledger) MasterNonce(ctx context.Context, kind types.OrderKind, exchange, maker common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.MasterNonce(ctx, kind, exchange, maker)
}

func (l *Ledger) IsNonceUsed(ctx context.Context, kind types.OrderKind, exchange, maker common.Address, nonce *big.Int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.IsNonceUsed(ctx, kind, exchange, maker, nonce)
}

func (l *Ledger) IsCancelled(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.IsCancelled(ctx, kind, exchange, orderID)
}

func (l *Ledger) FilledAmount(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.FilledAmount(ctx, kind, exchange, orderID)
}

func (l *Ledger) Balance(ctx context.Context, currency, owner common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.Balance(ctx, currency, owner)
}

func (l *Ledger) Allowance(ctx context.Context, currency, owner, spender common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.Allowance(ctx, currency, owner, spender)
}

func (l *Ledger) NFTBalance(ctx context.Context, token types.TokenRef, tokenID *big.Int, owner common.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.NFTBalance(ctx, token, tokenID, owner)
}

func (l *Ledger) IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.IsApprovedForAll(ctx, contract, owner, operator)
}

// --- 状态变更（调用方持锁） ---

func (s *state) nativeOf(owner common.Address) *big.Int {
	if v := s.native[owner]; v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (s *state) erc20Of(token, owner common.Address) *big.Int {
	if v := s.erc20[token][owner]; v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (s *state) addNative(owner common.Address, amount *big.Int) {
	s.native[owner] = new(big.Int).Add(s.nativeOf(owner), amount)
}

func (s *state) addERC20(token, owner common.Address, amount *big.Int) {
	if s.erc20[token] == nil {
		s.erc20[token] = make(map[common.Address]*big.Int)
	}
	s.erc20[token][owner] = new(big.Int).Add(s.erc20Of(token, owner), amount)
}

// transfer 原生币或 ERC20 转账，余额不足时报错
func (s *state) transfer(currency, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 || from == to {
		return nil
	}
	var bal *big.Int
	if types.IsNative(currency) {
		bal = s.nativeOf(from)
	} else {
		bal = s.erc20Of(currency, from)
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s balance of %s: have %s, need %s", currencyName(currency), from.Hex(), bal, amount)
	}
	neg := new(big.Int).Neg(amount)
	if types.IsNative(currency) {
		s.addNative(from, neg)
		s.addNative(to, amount)
	} else {
		s.addERC20(currency, from, neg)
		s.addERC20(currency, to, amount)
	}
	return nil
}

func currencyName(c common.Address) string {
	if types.IsNative(c) {
		return "native"
	}
	return c.Hex()
}

func (s *state) add1155(contract common.Address, tokenID *big.Int, owner common.Address, amount uint64) {
	if s.balances1155[contract] == nil {
		s.balances1155[contract] = make(map[string]map[common.Address]uint64)
	}
	id := tokenID.String()
	if s.balances1155[contract][id] == nil {
		s.balances1155[contract][id] = make(map[common.Address]uint64)
	}
	s.balances1155[contract][id][owner] += amount
}

func (s *state) nftBalance(token types.TokenRef, tokenID *big.Int, owner common.Address) uint64 {
	if token.Standard == types.StandardERC1155 {
		if tokenID == nil {
			return 0
		}
		return s.balances1155[token.Contract][tokenID.String()][owner]
	}
	if tokenID != nil {
		if s.owners721[token.Contract][tokenID.String()] == owner {
			return 1
		}
		return 0
	}
	var n uint64
	for _, o := range s.owners721[token.Contract] {
		if o == owner {
			n++
		}
	}
	return n
}

// transferNFT 转移 NFT
func (s *state) transferNFT(token types.TokenRef, tokenID *big.Int, from, to common.Address, amount uint64) error {
	if tokenID == nil {
		return fmt.Errorf("nft transfer without token id")
	}
	if s.nftBalance(token, tokenID, from) < amount {
		return fmt.Errorf("%s does not hold %d of %s:%s", from.Hex(), amount, token.Contract.Hex(), tokenID)
	}
	if token.Standard == types.StandardERC1155 {
		s.balances1155[token.Contract][tokenID.String()][from] -= amount
		s.add1155(token.Contract, tokenID, to, amount)
		return nil
	}
	s.owners721[token.Contract][tokenID.String()] = to
	return nil
}

func (s *state) addFilled(kind types.OrderKind, orderID string, amount uint64) {
	if s.filled[kind] == nil {
		s.filled[kind] = make(map[string]uint64)
	}
	s.filled[kind][orderID] += amount
}
