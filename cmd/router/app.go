package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gorouter/internal/journal"
	"github.com/betbot/gorouter/pkg/config"
	"github.com/betbot/gorouter/pkg/logger"
	sdkhttp "github.com/betbot/gorouter/pkg/sdk/http"
	"github.com/betbot/gorouter/pkg/secretstore"
	"github.com/betbot/gorouter/pkg/shutdown"
	"github.com/betbot/gorouter/pkg/wallet"
	"github.com/betbot/gorouter/router/adapters"
	"github.com/betbot/gorouter/router/chain"
	"github.com/betbot/gorouter/router/fees"
	"github.com/betbot/gorouter/router/indexer"
	"github.com/betbot/gorouter/router/signing"
	"github.com/betbot/gorouter/router/steps"
	"github.com/betbot/gorouter/router/types"
)

var log = logrus.WithField("component", "cli")

// app 一次命令执行所需的全部依赖
type app struct {
	cfg     *config.Config
	out     io.Writer
	key     *ecdsa.PrivateKey
	from    common.Address
	indexer *indexer.Client
	closers *shutdown.Manager

	journal *journal.Journal
	sender  *chain.Sender // DryRun 时为 nil
}

func newApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, out: out, closers: shutdown.NewManager()}
	a.closers.Closer("logger", logger.Close)

	storeKey, err := secretstore.ParseKey(cfg.Wallet.SecretKey)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("SECRET_KEY 无效: %w", err)
	}
	key, err := wallet.Load(wallet.Source{
		PrivateKey:     cfg.Wallet.PrivateKey,
		Mnemonic:       cfg.Wallet.Mnemonic,
		DerivationPath: cfg.Wallet.DerivationPath,
		StorePath:      cfg.Wallet.SecretDB,
		StoreKey:       storeKey,
		StoreName:      cfg.Wallet.SignerName,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.key = key
	a.from = signing.AddressOf(key)
	log.Infof("签名账户: %s chain=%d dryRun=%v", a.from.Hex(), cfg.ChainID, cfg.DryRun)

	a.indexer = indexer.New(cfg.IndexerURL, sdkhttp.WithTimeout(time.Duration(cfg.HTTPTimeoutSec)*time.Second))

	journalPath := cfg.JournalDB
	if cfg.DryRun {
		journalPath = ":memory:"
	}
	j, err := journal.Open(journalPath)
	if err != nil {
		a.close()
		return nil, err
	}
	a.journal = j
	a.closers.Closer("journal", j.Close)

	if !cfg.DryRun {
		if err := a.dial(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) dial(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, a.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("连接节点失败: %w", err)
	}
	a.closers.Closer("rpc", func() error { client.Close(); return nil })
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("获取链 id 失败: %w", err)
	}
	if chainID.Int64() != a.cfg.ChainID {
		return fmt.Errorf("节点链 id %s 与配置 %d 不一致", chainID, a.cfg.ChainID)
	}
	a.sender = chain.NewSender(client, a.key, chainID)
	a.closers.Closer("reader", func() error { a.sender.Close(); return nil })
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.closers.Shutdown(ctx); err != nil {
		log.Warnf("关闭资源失败: %v", err)
	}
}

// broadcaster DryRun 时只记录交易不发送
func (a *app) broadcaster() steps.Broadcaster {
	if a.sender != nil {
		return detached{a.sender}
	}
	return dryRunBroadcaster{}
}

// detached 已发出的交易不受中断信号影响，继续等待上链
type detached struct{ steps.Broadcaster }

func (d detached) SendTransaction(ctx context.Context, req steps.TxRequest) (*types.Receipt, error) {
	return d.Broadcaster.SendTransaction(context.WithoutCancel(ctx), req)
}

func (a *app) driver(sequenceID string) *steps.Driver {
	return steps.NewDriver(a.key, a.broadcaster(), a.indexer, steps.WithJournal(a.journal, sequenceID))
}

// runSequence 执行步骤并输出结果
func (a *app) runSequence(ctx context.Context, sequenceID string, seq *types.StepSequence) error {
	fmt.Fprintf(a.out, "sequence: %s\n", sequenceID)
	results, err := a.driver(sequenceID).Run(ctx, seq)
	if printErr := a.print(results); printErr != nil {
		return printErr
	}
	return err
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// registry 按配置创建各协议适配器
func (a *app) registry() (*adapters.Registry, error) {
	composer := fees.NewComposer(fees.Defaults{
		Recipient: common.HexToAddress(a.cfg.Orderbook.FeeRecipient),
		Bps:       a.cfg.Orderbook.FeeBps,
		Orderbook: a.cfg.Orderbook.Name,
	})
	configs := make(map[types.OrderKind]adapters.Config, len(a.cfg.Exchanges))
	for _, name := range a.cfg.ExchangeKinds() {
		kind, err := types.ParseOrderKind(name)
		if err != nil {
			return nil, err
		}
		ex := a.cfg.Exchanges[name]
		configs[kind] = adapters.Config{
			ChainID:    a.cfg.ChainID,
			Exchange:   config.Address(ex.Exchange),
			Module:     config.Address(ex.Module),
			Operator:   config.Address(ex.Operator),
			Zone:       config.Address(ex.Zone),
			Cosigner:   config.Address(ex.Cosigner),
			ConduitKey: common.HexToHash(ex.ConduitKey),
		}
	}
	return adapters.NewRegistry(composer, configs)
}

// dryRunBroadcaster 只打印交易，回执哈希为 calldata 的 keccak
type dryRunBroadcaster struct{}

func (dryRunBroadcaster) SendTransaction(_ context.Context, req steps.TxRequest) (*types.Receipt, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	hash := crypto.Keccak256Hash(req.To.Bytes(), req.Data, value.Bytes())
	log.WithField("tx", hash.Hex()).Infof("[dry-run] 跳过发送: to=%s value=%s data=%d bytes", req.To.Hex(), types.FormatEther(value), len(req.Data))
	return &types.Receipt{TxHash: hash}, nil
}
