package session

import (
	"errors"
	"fmt"
)

// Kind 会话失败分类
type Kind string

const (
	KindMarketUnavailable       Kind = "MarketUnavailable"
	KindSlippageExceeded        Kind = "SlippageExceeded"
	KindAccountBootstrapFailed  Kind = "AccountBootstrapFailed"
	KindSubscriptionFailed      Kind = "SubscriptionFailed"
	KindPositionOperationFailed Kind = "PositionOperationFailed"
)

// 分类哨兵：errors.Is(err, session.ErrAccountBootstrapFailed) 即可匹配，无需检查错误文本
var (
	ErrMarketUnavailable       = &Error{Kind: KindMarketUnavailable}
	ErrSlippageExceeded        = &Error{Kind: KindSlippageExceeded}
	ErrAccountBootstrapFailed  = &Error{Kind: KindAccountBootstrapFailed}
	ErrSubscriptionFailed      = &Error{Kind: KindSubscriptionFailed}
	ErrPositionOperationFailed = &Error{Kind: KindPositionOperationFailed}
)

// 前置条件错误（不属于交易所失败）
var (
	ErrAccountNotReady           = errors.New("session: margin account is not ready")
	ErrBootstrapAlreadyAttempted = errors.New("session: account creation already attempted in this run")
	ErrInvalidTransition         = errors.New("session: invalid state transition")
)

// Error 带分类的会话错误；Err 为底层原因，可通过 errors.Is/As 继续匹配
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同一 Kind 即匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf 返回错误链上第一个会话错误的分类；非会话错误返回空串
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
