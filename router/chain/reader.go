// Package chain 链上读写：Reader 实现 adapters.ChainState，Sender 签名并广播交易
package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/pkg/cache"
	"github.com/betbot/gorouter/router/adapters"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "chain")

// conduit 地址部署后不变
const conduitTTL = time.Hour

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Caller 只读节点接口，*ethclient.Client 满足
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader 基于节点的 ChainState
type Reader struct {
	backend  Caller
	conduits *cache.InMemoryCache[string, common.Address]
}

var _ adapters.ChainState = (*Reader)(nil)

// NewReader 创建 Reader
func NewReader(backend Caller) *Reader {
	return &Reader{
		backend:  backend,
		conduits: cache.NewInMemoryCache[string, common.Address](conduitTTL),
	}
}

// Close 释放缓存
func (r *Reader) Close() {
	r.conduits.Close()
}

func (r *Reader) call(ctx context.Context, contract common.Address, a abi.ABI, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("打包 %s 参数失败: %w", method, err)
	}
	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 %s.%s 失败: %w", contract.Hex(), method, err)
	}
	values, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 返回值失败: %w", method, err)
	}
	return values, nil
}

func (r *Reader) callUint(ctx context.Context, contract common.Address, a abi.ABI, method string, args ...any) (*big.Int, error) {
	values, err := r.call(ctx, contract, a, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s 返回值类型 %T", method, values[0])
	}
	return v, nil
}

// Now 最新区块时间
func (r *Reader) Now(ctx context.Context) (int64, error) {
	head, err := r.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("获取最新区块失败: %w", err)
	}
	return int64(head.Time), nil
}

// MasterNonce Seaport counter、PaymentProcessor masterNonces、Element hashNonce；其他协议为 0
func (r *Reader) MasterNonce(ctx context.Context, kind types.OrderKind, exchange, maker common.Address) (*big.Int, error) {
	switch kind {
	case types.OrderKindSeaportV15, types.OrderKindSeaportV16:
		return r.callUint(ctx, exchange, seaportABI, "getCounter", maker)
	case types.OrderKindPaymentProcessorV2, types.OrderKindPaymentProcessorV21:
		return r.callUint(ctx, exchange, paymentProcessorABI, "masterNonces", maker)
	case types.OrderKindElement:
		return r.callUint(ctx, exchange, nonceVectorABI, "getHashNonce", maker)
	default:
		return new(big.Int), nil
	}
}

// IsNonceUsed PaymentProcessor isNonceUsed；Element / ZeroEx 查 ERC721 nonce 位图
func (r *Reader) IsNonceUsed(ctx context.Context, kind types.OrderKind, exchange, maker common.Address, nonce *big.Int) (bool, error) {
	switch kind {
	case types.OrderKindPaymentProcessorV2, types.OrderKindPaymentProcessorV21:
		values, err := r.call(ctx, exchange, paymentProcessorABI, "isNonceUsed", maker, nonce)
		if err != nil {
			return false, err
		}
		return values[0].(bool), nil
	case types.OrderKindElement, types.OrderKindZeroExV4:
		// nonce 高 248 位为 range，低 8 位为位图下标
		nonceRange := new(big.Int).Rsh(nonce, 8)
		vector, err := r.callUint(ctx, exchange, nonceVectorABI, "getERC721OrderStatusBitVector", maker, nonceRange)
		if err != nil {
			return false, err
		}
		return vector.Bit(int(new(big.Int).And(nonce, big.NewInt(0xff)).Int64())) == 1, nil
	default:
		return false, nil
	}
}

// IsCancelled Seaport getOrderStatus.isCancelled；Rarible fills 为 uint256 最大值
func (r *Reader) IsCancelled(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string) (bool, error) {
	switch kind {
	case types.OrderKindSeaportV15, types.OrderKindSeaportV16:
		values, err := r.call(ctx, exchange, seaportABI, "getOrderStatus", common.HexToHash(orderID))
		if err != nil {
			return false, err
		}
		return values[1].(bool), nil
	case types.OrderKindRarible:
		fills, err := r.callUint(ctx, exchange, raribleABI, "fills", common.HexToHash(orderID))
		if err != nil {
			return false, err
		}
		return fills.Cmp(maxUint256) == 0, nil
	default:
		return false, nil
	}
}

// FilledAmount Seaport 只能区分全部成交（分数约分后无法还原单位数），Rarible 返回 fills
func (r *Reader) FilledAmount(ctx context.Context, kind types.OrderKind, exchange common.Address, orderID string) (uint64, error) {
	switch kind {
	case types.OrderKindSeaportV15, types.OrderKindSeaportV16:
		values, err := r.call(ctx, exchange, seaportABI, "getOrderStatus", common.HexToHash(orderID))
		if err != nil {
			return 0, err
		}
		filled, size := values[2].(*big.Int), values[3].(*big.Int)
		if size.Sign() > 0 && filled.Cmp(size) >= 0 {
			return math.MaxUint64, nil
		}
		return 0, nil
	case types.OrderKindRarible:
		fills, err := r.callUint(ctx, exchange, raribleABI, "fills", common.HexToHash(orderID))
		if err != nil {
			return 0, err
		}
		if !fills.IsUint64() {
			return math.MaxUint64, nil
		}
		return fills.Uint64(), nil
	default:
		return 0, nil
	}
}

// Balance 原生币或 ERC20 余额
func (r *Reader) Balance(ctx context.Context, currency, owner common.Address) (*big.Int, error) {
	if types.IsNative(currency) {
		v, err := r.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("获取余额失败: %w", err)
		}
		return v, nil
	}
	return r.callUint(ctx, currency, erc20ABI, "balanceOf", owner)
}

// Allowance ERC20 授权额度
func (r *Reader) Allowance(ctx context.Context, currency, owner, spender common.Address) (*big.Int, error) {
	return r.callUint(ctx, currency, erc20ABI, "allowance", owner, spender)
}

// NFTBalance ERC721 tokenID 为 nil 时返回合约内持有数量；ownerOf 回滚（未铸造或已销毁）视为 0
func (r *Reader) NFTBalance(ctx context.Context, token types.TokenRef, tokenID *big.Int, owner common.Address) (uint64, error) {
	if token.Standard == types.StandardERC1155 {
		if tokenID == nil {
			return 0, nil
		}
		v, err := r.callUint(ctx, token.Contract, erc1155ABI, "balanceOf", owner, tokenID)
		if err != nil {
			return 0, err
		}
		return clampUint64(v), nil
	}
	if tokenID == nil {
		v, err := r.callUint(ctx, token.Contract, erc721ABI, "balanceOf", owner)
		if err != nil {
			return 0, err
		}
		return clampUint64(v), nil
	}
	values, err := r.call(ctx, token.Contract, erc721ABI, "ownerOf", tokenID)
	if err != nil {
		if isRevert(err) {
			return 0, nil
		}
		return 0, err
	}
	if values[0].(common.Address) == owner {
		return 1, nil
	}
	return 0, nil
}

// IsApprovedForAll setApprovalForAll 授权
func (r *Reader) IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error) {
	values, err := r.call(ctx, contract, erc721ABI, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// Conduit 查询 conduitKey 对应的 conduit，结果缓存；不存在时返回零地址
func (r *Reader) Conduit(ctx context.Context, controller common.Address, key common.Hash) (common.Address, bool, error) {
	cacheKey := controller.Hex() + key.Hex()
	if addr, ok := r.conduits.Get(cacheKey); ok {
		return addr, true, nil
	}
	values, err := r.call(ctx, controller, conduitControllerABI, "getConduit", key)
	if err != nil {
		return common.Address{}, false, err
	}
	addr, exists := values[0].(common.Address), values[1].(bool)
	if exists {
		r.conduits.Set(cacheKey, addr, 0)
	}
	return addr, exists, nil
}

// ChannelOpen conduit 是否已为 channel 开放
func (r *Reader) ChannelOpen(ctx context.Context, controller, conduit, channel common.Address) (bool, error) {
	values, err := r.call(ctx, controller, conduitControllerABI, "getChannelStatus", conduit, channel)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// Zone 由 salt 推导的 zone 地址
func (r *Reader) Zone(ctx context.Context, factory common.Address, salt common.Hash) (common.Address, error) {
	values, err := r.call(ctx, factory, zoneFactoryABI, "getZone", salt)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

func clampUint64(v *big.Int) uint64 {
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

// isRevert 节点返回了执行回滚（带 data 的 RPC 错误）
func isRevert(err error) bool {
	var de rpc.DataError
	return errors.As(err, &de)
}
