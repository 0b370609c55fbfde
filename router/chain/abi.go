package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC20ABI 余额与授权查询
const ERC20ABI = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ERC721ABI 持有与授权查询
const ERC721ABI = `[
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"name":"isApprovedForAll","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// ERC1155ABI 余额查询
const ERC1155ABI = `[
	{"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// SeaportABI counter 与订单状态
const SeaportABI = `[
	{"inputs":[{"name":"offerer","type":"address"}],"name":"getCounter","outputs":[{"name":"counter","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"orderHash","type":"bytes32"}],"name":"getOrderStatus","outputs":[{"name":"isValidated","type":"bool"},{"name":"isCancelled","type":"bool"},{"name":"totalFilled","type":"uint256"},{"name":"totalSize","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// PaymentProcessorABI master nonce 与单笔 nonce
const PaymentProcessorABI = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"masterNonces","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"},{"name":"nonce","type":"uint256"}],"name":"isNonceUsed","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// NonceVectorABI Element / ZeroEx V4 的 ERC721 nonce 位图，以及 Element 的 hashNonce
const NonceVectorABI = `[
	{"inputs":[{"name":"maker","type":"address"},{"name":"nonceRange","type":"uint248"}],"name":"getERC721OrderStatusBitVector","outputs":[{"name":"bitVector","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"maker","type":"address"}],"name":"getHashNonce","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// RaribleABI fills(hashKey)，取消的订单为 uint256 最大值
const RaribleABI = `[
	{"inputs":[{"name":"","type":"bytes32"}],"name":"fills","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ConduitControllerABI Seaport conduit 管理
const ConduitControllerABI = `[
	{"inputs":[{"name":"conduitKey","type":"bytes32"}],"name":"getConduit","outputs":[{"name":"conduit","type":"address"},{"name":"exists","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"conduitKey","type":"bytes32"},{"name":"initialOwner","type":"address"}],"name":"createConduit","outputs":[{"name":"conduit","type":"address"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"conduit","type":"address"},{"name":"channel","type":"address"},{"name":"isOpen","type":"bool"}],"name":"updateChannel","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"conduit","type":"address"},{"name":"channel","type":"address"}],"name":"getChannelStatus","outputs":[{"name":"isOpen","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// ZoneFactoryABI 链下取消 zone 的创建与查询
const ZoneFactoryABI = `[
	{"inputs":[{"name":"salt","type":"bytes32"}],"name":"createZone","outputs":[{"name":"zone","type":"address"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"salt","type":"bytes32"}],"name":"getZone","outputs":[{"name":"zone","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI             = mustABI(ERC20ABI)
	erc721ABI            = mustABI(ERC721ABI)
	erc1155ABI           = mustABI(ERC1155ABI)
	seaportABI           = mustABI(SeaportABI)
	paymentProcessorABI  = mustABI(PaymentProcessorABI)
	nonceVectorABI       = mustABI(NonceVectorABI)
	raribleABI           = mustABI(RaribleABI)
	conduitControllerABI = mustABI(ConduitControllerABI)
	zoneFactoryABI       = mustABI(ZoneFactoryABI)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
