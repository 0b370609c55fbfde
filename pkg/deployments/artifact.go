package deployments

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/betbot/gorouter/router/types"
)

// Artifact 编译产物中的 abi 与创建字节码
type Artifact struct {
	ContractName string        `json:"contractName"`
	ABI          abi.ABI       `json:"abi"`
	Bytecode     hexutil.Bytes `json:"bytecode"`
}

// LoadArtifact 读取 {contractName, abi, bytecode} 格式的 JSON
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取编译产物失败: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("解析编译产物 %s 失败: %w", path, err)
	}
	if len(a.Bytecode) == 0 {
		return nil, fmt.Errorf("编译产物 %s 没有 bytecode", path)
	}
	return &a, nil
}

// ContractCreator 发送合约创建交易，chain.Sender 满足
type ContractCreator interface {
	DeployContract(ctx context.Context, code []byte) (common.Address, *types.Receipt, error)
}

// ArtifactDeployer 从目录 <dir>/<contract>.json 读取产物部署
type ArtifactDeployer struct {
	dir     string
	creator ContractCreator
}

func NewArtifactDeployer(dir string, creator ContractCreator) *ArtifactDeployer {
	return &ArtifactDeployer{dir: dir, creator: creator}
}

// Artifact 按合约名读取产物
func (d *ArtifactDeployer) Artifact(contract string) (*Artifact, error) {
	return LoadArtifact(filepath.Join(d.dir, contract+".json"))
}

func (d *ArtifactDeployer) Deploy(ctx context.Context, contract, version string, args []any) (common.Address, error) {
	a, err := d.Artifact(contract)
	if err != nil {
		return common.Address{}, err
	}
	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return common.Address{}, types.InvalidArgf("%s constructor arguments: %v", contract, err)
	}
	code := append(append([]byte{}, a.Bytecode...), packed...)
	addr, _, err := d.creator.DeployContract(ctx, code)
	return addr, err
}

// ParseArgs 按构造函数参数类型转换命令行字符串
func ParseArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(raw) != len(inputs) {
		return nil, types.InvalidArgf("expected %d constructor arguments, got %d", len(inputs), len(raw))
	}
	out := make([]any, len(raw))
	for i, in := range inputs {
		v, err := parseArg(in.Type, strings.TrimSpace(raw[i]))
		if err != nil {
			return nil, types.InvalidArgf("argument %d (%s): %v", i, in.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseArg(t abi.Type, s string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.FixedBytesTy:
		if t.Size != 32 {
			return nil, fmt.Errorf("unsupported type %s", t)
		}
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("invalid bytes32 %q", s)
		}
		return common.BytesToHash(b), nil
	case abi.BytesTy:
		return hexutil.Decode(s)
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		if t.Size > 64 {
			return n, nil
		}
		return smallInt(t, n)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

// smallInt abi 编码要求 8/16/32/64 位整数使用对应的 Go 类型
func smallInt(t abi.Type, n *big.Int) (any, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s out of range for %s", n, t)
		}
		v := n.Uint64()
		switch t.Size {
		case 8:
			return uint8(v), nil
		case 16:
			return uint16(v), nil
		case 32:
			return uint32(v), nil
		case 64:
			return v, nil
		}
	} else {
		if !n.IsInt64() {
			return nil, fmt.Errorf("%s out of range for %s", n, t)
		}
		v := n.Int64()
		if t.Size < 64 && (v < -(1<<(t.Size-1)) || v >= 1<<(t.Size-1)) {
			return nil, fmt.Errorf("%s out of range for %s", n, t)
		}
		switch t.Size {
		case 8:
			return int8(v), nil
		case 16:
			return int16(v), nil
		case 32:
			return int32(v), nil
		case 64:
			return v, nil
		}
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}
