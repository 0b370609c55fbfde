package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABIJSON = `[
  {"type":"function","name":"execute","stateMutability":"payable","inputs":[
    {"name":"executions","type":"tuple[]","components":[
      {"name":"module","type":"address"},
      {"name":"data","type":"bytes"},
      {"name":"value","type":"uint256"}
    ]}
  ],"outputs":[]}
]`

const forwarderABIJSON = `[
  {"type":"function","name":"forwardCall","stateMutability":"payable","inputs":[
    {"name":"target","type":"address"},
    {"name":"message","type":"bytes"}
  ],"outputs":[]}
]`

const orderDataComponents = `[
  {"name":"order","type":"bytes"},
  {"name":"signature","type":"bytes"},
  {"name":"amount","type":"uint256"},
  {"name":"tokenId","type":"uint256"},
  {"name":"proof","type":"bytes32[]"}
]`

const paramsComponents = `[
  {"name":"fillTo","type":"address"},
  {"name":"refundTo","type":"address"},
  {"name":"revertIfIncomplete","type":"bool"},
  {"name":"currency","type":"address"},
  {"name":"amount","type":"uint256"}
]`

const feeComponents = `[
  {"name":"recipient","type":"address"},
  {"name":"amount","type":"uint256"}
]`

var moduleABIJSON = strings.NewReplacer(
	"ORDERS", `{"name":"orders","type":"tuple[]","components":`+orderDataComponents+`}`,
	"PARAMS", `{"name":"params","type":"tuple","components":`+paramsComponents+`}`,
	"FEES", `{"name":"fees","type":"tuple[]","components":`+feeComponents+`}`,
).Replace(`[
  {"type":"function","name":"sweepCollection","stateMutability":"payable","inputs":[ORDERS,PARAMS],"outputs":[]},
  {"type":"function","name":"fillOrders","stateMutability":"payable","inputs":[ORDERS,PARAMS,FEES],"outputs":[]},
  {"type":"function","name":"acceptOffers","stateMutability":"nonpayable","inputs":[ORDERS,PARAMS,FEES],"outputs":[]},
  {"type":"function","name":"buyWithETH","stateMutability":"payable","inputs":[ORDERS,PARAMS,FEES],"outputs":[]},
  {"type":"function","name":"sell","stateMutability":"nonpayable","inputs":[ORDERS,PARAMS,FEES],"outputs":[]}
]`)

var (
	RouterABI    = mustABI(routerABIJSON)
	ModuleABI    = mustABI(moduleABIJSON)
	ForwarderABI = mustABI(forwarderABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("解析 ABI 失败: %v", err))
	}
	return parsed
}

// 模块方法
const (
	MethodSweepCollection = "sweepCollection"
	MethodFillOrders      = "fillOrders"
	MethodAcceptOffers    = "acceptOffers"
	MethodBuyWithETH      = "buyWithETH"
	MethodSell            = "sell"
)

// RouterCall execute 的单个元素
type RouterCall struct {
	Module common.Address `abi:"module"`
	Data   []byte         `abi:"data"`
	Value  *big.Int       `abi:"value"`
}

// OrderData 模块调用里的一笔订单
type OrderData struct {
	Order     []byte     `abi:"order"`
	Signature []byte     `abi:"signature"`
	Amount    *big.Int   `abi:"amount"`
	TokenID   *big.Int   `abi:"tokenId"`
	Proof     [][32]byte `abi:"proof"`
}

// ExecutionParams 模块调用的公共参数
type ExecutionParams struct {
	FillTo             common.Address `abi:"fillTo"`
	RefundTo           common.Address `abi:"refundTo"`
	RevertIfIncomplete bool           `abi:"revertIfIncomplete"`
	Currency           common.Address `abi:"currency"`
	Amount             *big.Int       `abi:"amount"`
}

// Fee on-top 费用
type Fee struct {
	Recipient common.Address `abi:"recipient"`
	Amount    *big.Int       `abi:"amount"`
}

// ModuleCallData 解码后的模块调用
type ModuleCallData struct {
	Method string
	Orders []OrderData
	Params ExecutionParams
	Fees   []Fee
}

// EncodeModuleCall 编码模块调用，sweepCollection 不带费用
func EncodeModuleCall(method string, orders []OrderData, params ExecutionParams, fees []Fee) ([]byte, error) {
	if orders == nil {
		orders = []OrderData{}
	}
	if method == MethodSweepCollection {
		return ModuleABI.Pack(method, orders, params)
	}
	if fees == nil {
		fees = []Fee{}
	}
	return ModuleABI.Pack(method, orders, params, fees)
}

// DecodeModuleCall 解码模块调用
func DecodeModuleCall(data []byte) (*ModuleCallData, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("模块调用数据过短: %d 字节", len(data))
	}
	method, err := ModuleABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("解码 %s 失败: %w", method.Name, err)
	}
	out := &ModuleCallData{Method: method.Name}
	out.Orders = *abi.ConvertType(values[0], new([]OrderData)).(*[]OrderData)
	out.Params = *abi.ConvertType(values[1], new(ExecutionParams)).(*ExecutionParams)
	if len(values) > 2 {
		out.Fees = *abi.ConvertType(values[2], new([]Fee)).(*[]Fee)
	}
	return out, nil
}

// EncodeExecute 编码 router.execute
func EncodeExecute(calls []RouterCall) ([]byte, error) {
	return RouterABI.Pack("execute", calls)
}

// DecodeExecute 解码 router.execute
func DecodeExecute(data []byte) ([]RouterCall, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("execute 数据过短: %d 字节", len(data))
	}
	method, err := RouterABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("解码 execute 失败: %w", err)
	}
	return *abi.ConvertType(values[0], new([]RouterCall)).(*[]RouterCall), nil
}

// EncodeForward 编码 forwarder.forwardCall(target, message)
func EncodeForward(target common.Address, message []byte) ([]byte, error) {
	return ForwarderABI.Pack("forwardCall", target, message)
}

// DecodeForward 解码 forwardCall，返回目标地址和内层调用
func DecodeForward(data []byte) (common.Address, []byte, error) {
	if len(data) < 4 {
		return common.Address{}, nil, fmt.Errorf("forwardCall 数据过短: %d 字节", len(data))
	}
	method, err := ForwarderABI.MethodById(data[:4])
	if err != nil {
		return common.Address{}, nil, err
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("解码 forwardCall 失败: %w", err)
	}
	return values[0].(common.Address), values[1].([]byte), nil
}

// IsForward 是否为 forwardCall
func IsForward(data []byte) bool {
	id := ForwarderABI.Methods["forwardCall"].ID
	return len(data) >= 4 && string(data[:4]) == string(id)
}
