// Package steps 顺序执行 indexer 返回的 StepSequence：交易条目广播并等待上链，签名条目签名后回调 indexer
package steps

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/internal/metrics"
	"github.com/betbot/gorouter/router/indexer"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "steps")

// DefaultGasLimit 条目未给出 gas 时使用
const DefaultGasLimit uint64 = 1_000_000

// TxRequest transaction 条目解析出的交易
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// Broadcaster 广播交易并阻塞到上链
type Broadcaster interface {
	SendTransaction(ctx context.Context, req TxRequest) (*types.Receipt, error)
}

// Poster 签名步骤回调
type Poster interface {
	CallStep(ctx context.Context, stepID, method, endpoint, signature string, body json.RawMessage) (*indexer.StepSaveResponse, error)
}

// Journal 已完成条目的记录，用于中断后续跑
type Journal interface {
	IsComplete(ctx context.Context, sequenceID, stepID string, index int) (bool, error)
	MarkComplete(ctx context.Context, sequenceID, stepID string, index int, kind types.StepKind, result string) error
}

// Driver 单线程顺序执行；不重试，出错即返回
type Driver struct {
	key         *ecdsa.PrivateKey
	signer      common.Address
	broadcaster Broadcaster
	poster      Poster
	journal     Journal
	sequenceID  string
}

// Option 驱动选项
type Option func(*Driver)

// WithJournal 记录并跳过已完成条目
func WithJournal(j Journal, sequenceID string) Option {
	return func(d *Driver) {
		d.journal = j
		d.sequenceID = sequenceID
	}
}

// NewDriver key 为签名与发送交易所用的私钥
func NewDriver(key *ecdsa.PrivateKey, b Broadcaster, p Poster, opts ...Option) *Driver {
	d := &Driver{key: key, signer: signing.AddressOf(key), broadcaster: b, poster: p}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run 按顺序处理全部步骤，返回已处理条目的结果；ctx 取消后不再开始下一个条目
func (d *Driver) Run(ctx context.Context, seq *types.StepSequence) ([]types.StepResult, error) {
	if seq == nil {
		return nil, types.InvalidArgf("nil step sequence")
	}
	var results []types.StepResult
	for _, step := range seq.Steps {
		for i, item := range step.Items {
			if err := ctx.Err(); err != nil {
				log.WithField("step", step.ID).Infof("已取消，停止后续步骤: %v", err)
				return results, err
			}
			skip, err := d.shouldSkip(ctx, step, i, item)
			if err != nil {
				return results, err
			}
			if skip {
				metrics.StepItemsSkipped.Add(1)
				continue
			}

			var (
				result   any
				recorded string
			)
			switch step.Kind {
			case types.StepKindTransaction:
				receipt, err := d.runTransaction(ctx, step, item)
				if err != nil {
					return results, err
				}
				result, recorded = receipt, receipt.TxHash.Hex()
			case types.StepKindSignature:
				resp, err := d.runSignature(ctx, step, item)
				if err != nil {
					return results, err
				}
				raw, _ := json.Marshal(resp)
				result, recorded = resp, string(raw)
			default:
				return results, types.InvalidArgf("step %s has unknown kind %q", step.ID, step.Kind)
			}
			results = append(results, types.StepResult{StepID: step.ID, Result: result})
			metrics.StepItemsDone.Add(1)
			if d.journal != nil {
				if err := d.journal.MarkComplete(ctx, d.sequenceID, step.ID, i, step.Kind, recorded); err != nil {
					return results, fmt.Errorf("记录步骤 %s/%d 失败: %w", step.ID, i, err)
				}
			}
		}
	}
	return results, nil
}

// shouldSkip complete 的条目（交易和签名）、无数据的条目和已记录的条目跳过
func (d *Driver) shouldSkip(ctx context.Context, step types.Step, index int, item types.StepItem) (bool, error) {
	if item.Data == nil || item.Status == types.StepComplete {
		return true, nil
	}
	if d.journal == nil {
		return false, nil
	}
	done, err := d.journal.IsComplete(ctx, d.sequenceID, step.ID, index)
	if err != nil {
		return false, fmt.Errorf("读取步骤记录失败: %w", err)
	}
	if done {
		log.WithField("step", step.ID).Debugf("条目 %d 已完成，跳过", index)
	}
	return done, nil
}

func (d *Driver) runTransaction(ctx context.Context, step types.Step, item types.StepItem) (*types.Receipt, error) {
	req, err := ParseTxRequest(item.Data)
	if err != nil {
		return nil, fmt.Errorf("步骤 %s: %w", step.ID, err)
	}
	if req.From != (common.Address{}) && req.From != d.signer {
		return nil, types.InvalidArgf("step %s expects sender %s, signer is %s", step.ID, req.From.Hex(), d.signer.Hex())
	}
	req.From = d.signer
	log.WithField("step", step.ID).Infof("发送交易: to=%s value=%s gas=%d", req.To.Hex(), req.Value, req.Gas)
	receipt, err := d.broadcaster.SendTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("步骤 %s 交易失败: %w", step.ID, err)
	}
	return receipt, nil
}

func (d *Driver) runSignature(ctx context.Context, step types.Step, item types.StepItem) (*indexer.StepSaveResponse, error) {
	payload, post := item.Data.Sign, item.Data.Post
	if payload == nil || post == nil {
		return nil, types.InvalidArgf("signature step %s lacks sign or post data", step.ID)
	}
	sig, err := signing.SignPayload(d.key, payload)
	if err != nil {
		return nil, fmt.Errorf("步骤 %s 签名失败: %w", step.ID, err)
	}
	log.WithField("step", step.ID).Infof("提交签名: %s %s", post.Method, post.Endpoint)
	resp, err := d.poster.CallStep(ctx, step.ID, post.Method, post.Endpoint, sig, post.Body)
	if err != nil {
		var saveErr *types.StepSaveError
		if errors.As(err, &saveErr) {
			return nil, err
		}
		return nil, fmt.Errorf("步骤 %s 回调失败: %w", step.ID, err)
	}
	return resp, nil
}

// ParseTxRequest 解析 transaction 条目；value/gas 支持十进制与 0x 十六进制
func ParseTxRequest(data *types.StepItemData) (TxRequest, error) {
	var req TxRequest
	if data == nil {
		return req, types.InvalidArgf("missing transaction data")
	}
	if !common.IsHexAddress(data.To) {
		return req, types.InvalidArgf("transaction target %q", data.To)
	}
	req.To = common.HexToAddress(data.To)
	if data.From != "" {
		if !common.IsHexAddress(data.From) {
			return req, types.InvalidArgf("transaction sender %q", data.From)
		}
		req.From = common.HexToAddress(data.From)
	}
	if data.Data != "" && data.Data != "0x" {
		raw, err := hexutil.Decode(strings.ToLower(data.Data))
		if err != nil {
			return req, types.InvalidArgf("transaction data: %v", err)
		}
		req.Data = raw
	}
	value, err := types.ParseQuantity(data.Value)
	if err != nil {
		return req, err
	}
	req.Value = value
	req.Gas = DefaultGasLimit
	if data.Gas != "" {
		gas, err := types.ParseQuantity(data.Gas)
		if err != nil {
			return req, err
		}
		if gas.Sign() > 0 && gas.IsUint64() {
			req.Gas = gas.Uint64()
		}
	}
	return req, nil
}
