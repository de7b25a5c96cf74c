package domain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Session 一次运行的不可变上下文：钱包身份、网络端点、清算所程序。
// 按值传递，启动时创建一次，进程生命周期内不修改。
type Session struct {
	RunID       string
	Env         string
	Wallet      solana.PublicKey
	RPCEndpoint string
	ProgramID   solana.PublicKey
}

// NewSession 创建会话（RunID 用于日志关联）
func NewSession(env string, wallet solana.PublicKey, rpcEndpoint string, programID solana.PublicKey) Session {
	return Session{
		RunID:       uuid.NewString(),
		Env:         env,
		Wallet:      wallet,
		RPCEndpoint: rpcEndpoint,
		ProgramID:   programID,
	}
}
