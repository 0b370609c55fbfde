package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/betbot/gorouter/router/steps"
	"github.com/betbot/gorouter/router/types"
)

// Backend 发送交易所需的节点接口，*ethclient.Client 满足
type Backend interface {
	Caller
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// gas 估算上浮 20%
const gasBufferPercent = 120

// Sender 用单个私钥签名发送 EIP-1559 交易并等待上链
type Sender struct {
	*Reader
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	mu      sync.Mutex // 同一账户串行取 nonce
}

// NewSender chainID 用于交易签名
func NewSender(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) *Sender {
	return &Sender{
		Reader:  NewReader(backend),
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

// From 发送地址
func (s *Sender) From() common.Address { return s.from }

// SendTransaction 步骤驱动的交易条目；实现 steps.Broadcaster
func (s *Sender) SendTransaction(ctx context.Context, req steps.TxRequest) (*types.Receipt, error) {
	if req.From != (common.Address{}) && req.From != s.from {
		return nil, types.InvalidArgf("transaction sender %s does not match key %s", req.From.Hex(), s.from.Hex())
	}
	return s.send(ctx, req.To, req.Data, req.Value, req.Gas)
}

// Submit 执行计划中的路由交易，gas 由节点估算；实现 execution.Submitter
func (s *Sender) Submit(ctx context.Context, tx types.Transaction) (*types.Receipt, error) {
	if tx.From != (common.Address{}) && tx.From != s.from {
		return nil, types.InvalidArgf("plan taker %s does not match key %s", tx.From.Hex(), s.from.Hex())
	}
	return s.send(ctx, tx.To, tx.Data, tx.Value, 0)
}

func (s *Sender) send(ctx context.Context, to common.Address, data []byte, value *big.Int, gas uint64) (*types.Receipt, error) {
	_, out, err := s.transact(ctx, &to, data, value, gas)
	return out, err
}

// DeployContract 发送合约创建交易，返回新合约地址
func (s *Sender) DeployContract(ctx context.Context, code []byte) (common.Address, *types.Receipt, error) {
	if len(code) == 0 {
		return common.Address{}, nil, types.InvalidArgf("empty contract bytecode")
	}
	raw, out, err := s.transact(ctx, nil, code, nil, 0)
	if err != nil {
		return common.Address{}, out, err
	}
	return raw.ContractAddress, out, nil
}

// transact to 为 nil 时创建合约
func (s *Sender) transact(ctx context.Context, to *common.Address, data []byte, value *big.Int, gas uint64) (*ethtypes.Receipt, *types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	signed, err := s.signTx(ctx, to, data, value, gas)
	if err != nil {
		return nil, nil, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, nil, fmt.Errorf("发送交易失败: %w", err)
	}
	target := "create"
	if to != nil {
		target = to.Hex()
	}
	log.WithField("tx", signed.Hash().Hex()).Infof("交易已发送: to=%s nonce=%d gas=%d", target, signed.Nonce(), signed.Gas())

	receipt, err := bind.WaitMined(ctx, s.backend, signed)
	if err != nil {
		return nil, nil, fmt.Errorf("等待交易 %s 上链失败: %w", signed.Hash().Hex(), err)
	}
	out := &types.Receipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64(), GasUsed: receipt.GasUsed}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return receipt, out, nil
	}
	reason := s.replayReason(ctx, to, data, value, signed.Gas(), receipt.BlockNumber)
	log.WithField("tx", receipt.TxHash.Hex()).Warnf("交易回滚: %s", reason)
	return receipt, out, &types.RevertError{TxHash: receipt.TxHash.Hex(), Reason: reason}
}

func (s *Sender) signTx(ctx context.Context, to *common.Address, data []byte, value *big.Int, gas uint64) (*ethtypes.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("获取nonce失败: %w", err)
	}
	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取gas小费失败: %w", err)
	}
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块失败: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	if gas == 0 {
		estimated, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: to, Data: data, Value: value})
		if err != nil {
			return nil, fmt.Errorf("估算gas失败: %w", err)
		}
		gas = estimated * gasBufferPercent / 100
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	return signed, nil
}

// replayReason 在回执所在区块重放调用取回滚原因
func (s *Sender) replayReason(ctx context.Context, to *common.Address, data []byte, value *big.Int, gas uint64, block *big.Int) string {
	msg := ethereum.CallMsg{From: s.from, To: to, Data: data, Value: value, Gas: gas}
	ret, err := s.backend.CallContract(ctx, msg, block)
	return DecodeRevert(err, ret)
}

// DecodeRevert Error(string) 解出字符串，UnsuccessfulExecution() 还原为签名，其他返回原始 hex
func DecodeRevert(err error, ret []byte) string {
	data := ret
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(s); decErr == nil {
				data = raw
			}
		}
	}
	if len(data) >= 4 {
		if reason, uerr := abi.UnpackRevert(data); uerr == nil {
			return reason
		}
		if hexutil.Encode(data[:4]) == types.UnsuccessfulExecutionSelector {
			return "UnsuccessfulExecution()"
		}
		return hexutil.Encode(data)
	}
	if err != nil {
		return err.Error()
	}
	return "unknown"
}
