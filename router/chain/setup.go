package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/gorouter/router/types"
)

// ConduitKeyFor Seaport conduit key：前 20 字节为创建者地址，后 12 字节为 0
func ConduitKeyFor(deployer common.Address) common.Hash {
	var key common.Hash
	copy(key[:common.AddressLength], deployer.Bytes())
	return key
}

// EnsureConduit conduit 不存在时以发送者为 owner 创建，返回 conduit 地址
func (s *Sender) EnsureConduit(ctx context.Context, controller common.Address, key common.Hash) (common.Address, error) {
	if conduit, exists, err := s.Conduit(ctx, controller, key); err != nil {
		return common.Address{}, err
	} else if exists {
		log.Debugf("conduit 已存在: %s", conduit.Hex())
		return conduit, nil
	}
	if common.BytesToAddress(key[:common.AddressLength]) != s.from {
		return common.Address{}, types.InvalidArgf("conduit key %s is not owned by %s", key.Hex(), s.from.Hex())
	}
	data, err := conduitControllerABI.Pack("createConduit", key, s.from)
	if err != nil {
		return common.Address{}, fmt.Errorf("打包createConduit参数失败: %w", err)
	}
	if _, err := s.send(ctx, controller, data, nil, 0); err != nil {
		return common.Address{}, fmt.Errorf("创建conduit失败: %w", err)
	}
	conduit, exists, err := s.Conduit(ctx, controller, key)
	if err != nil {
		return common.Address{}, err
	}
	if !exists {
		return common.Address{}, fmt.Errorf("conduit %s 创建后仍不存在", key.Hex())
	}
	log.Infof("conduit 已创建: %s", conduit.Hex())
	return conduit, nil
}

// OpenChannel 为 channel（路由模块）开放 conduit，已开放时不发交易
func (s *Sender) OpenChannel(ctx context.Context, controller, conduit, channel common.Address) error {
	open, err := s.ChannelOpen(ctx, controller, conduit, channel)
	if err != nil {
		return err
	}
	if open {
		return nil
	}
	data, err := conduitControllerABI.Pack("updateChannel", conduit, channel, true)
	if err != nil {
		return fmt.Errorf("打包updateChannel参数失败: %w", err)
	}
	if _, err := s.send(ctx, controller, data, nil, 0); err != nil {
		return fmt.Errorf("开放channel %s 失败: %w", channel.Hex(), err)
	}
	log.Infof("conduit %s 已开放 channel %s", conduit.Hex(), channel.Hex())
	return nil
}

// EnsureZone 链下取消 zone 尚未部署时创建，返回 zone 地址
func (s *Sender) EnsureZone(ctx context.Context, factory common.Address, salt common.Hash) (common.Address, error) {
	zone, err := s.Zone(ctx, factory, salt)
	if err != nil {
		return common.Address{}, err
	}
	if zone != (common.Address{}) {
		code, err := s.backend.CodeAt(ctx, zone, nil)
		if err != nil {
			return common.Address{}, fmt.Errorf("读取zone代码失败: %w", err)
		}
		if len(code) > 0 {
			return zone, nil
		}
	}
	data, err := zoneFactoryABI.Pack("createZone", salt)
	if err != nil {
		return common.Address{}, fmt.Errorf("打包createZone参数失败: %w", err)
	}
	if _, err := s.send(ctx, factory, data, nil, 0); err != nil {
		return common.Address{}, fmt.Errorf("创建zone失败: %w", err)
	}
	zone, err = s.Zone(ctx, factory, salt)
	if err != nil {
		return common.Address{}, err
	}
	log.Infof("zone 已创建: %s", zone.Hex())
	return zone, nil
}
