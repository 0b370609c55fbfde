package types

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUnsupportedKind       = errors.New("unsupported order kind")
	ErrSignature             = errors.New("signature error")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrUnfillable            = errors.New("unfillable")
	ErrFeeOverflow           = errors.New("fee overflow")
	ErrNoFillableOrders      = errors.New("no fillable orders")
	ErrUnsuccessfulExecution = errors.New("unsuccessful execution")
	ErrStepSave              = errors.New("step save error")
)

// UnfillableReason 不可成交原因
type UnfillableReason string

const (
	ReasonCancelled           UnfillableReason = "Cancelled"
	ReasonExpired             UnfillableReason = "Expired"
	ReasonInsufficientBalance UnfillableReason = "InsufficientBalance"
	ReasonNotApproved         UnfillableReason = "NotApproved"
	ReasonNonceInvalid        UnfillableReason = "NonceInvalid"
)

// UnfillableError 订单当前不可成交，调用方修复后可重试
type UnfillableError struct {
	OrderID string
	Reason  UnfillableReason
}

func (e *UnfillableError) Error() string {
	return fmt.Sprintf("order %s unfillable: %s", e.OrderID, e.Reason)
}

func (e *UnfillableError) Unwrap() error { return ErrUnfillable }

// NewUnfillable 构造不可成交错误
func NewUnfillable(orderID string, reason UnfillableReason) error {
	return &UnfillableError{OrderID: orderID, Reason: reason}
}

// UnfillableReasonOf 提取不可成交原因
func UnfillableReasonOf(err error) (UnfillableReason, bool) {
	var ue *UnfillableError
	if errors.As(err, &ue) {
		return ue.Reason, true
	}
	return "", false
}

// FeeOverflowError 费用合计超过协议上限
type FeeOverflowError struct {
	Kind  OrderKind
	Total uint64
	Max   uint64
}

func (e *FeeOverflowError) Error() string {
	return fmt.Sprintf("%s: fee total %d bps exceeds max %d bps", e.Kind, e.Total, e.Max)
}

func (e *FeeOverflowError) Unwrap() error { return ErrFeeOverflow }

// StepSaveError indexer 拒绝了签名或步骤回调
type StepSaveError struct {
	StepID  string
	Message string
}

func (e *StepSaveError) Error() string {
	return fmt.Sprintf("step %s rejected by indexer: %s", e.StepID, e.Message)
}

func (e *StepSaveError) Unwrap() error { return ErrStepSave }

// UnsuccessfulExecutionSelector 自定义错误 UnsuccessfulExecution() 的 selector
const UnsuccessfulExecutionSelector = "0xab126876"

// RevertError 链上回滚，原样携带回滚原因
type RevertError struct {
	TxHash string
	Reason string
}

func (e *RevertError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("tx %s reverted: %s", e.TxHash, e.Reason)
}

// Unwrap UnsuccessfulExecution() 映射为 ErrUnsuccessfulExecution
func (e *RevertError) Unwrap() error {
	if e.Reason == "UnsuccessfulExecution()" || e.Reason == UnsuccessfulExecutionSelector {
		return ErrUnsuccessfulExecution
	}
	return nil
}

// InvalidArgf 构造参数错误
func InvalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// FeeOverflowErr 构造费用超限错误
func FeeOverflowErr(kind OrderKind, total, max *big.Int) error {
	return &FeeOverflowError{Kind: kind, Total: total.Uint64(), Max: max.Uint64()}
}
