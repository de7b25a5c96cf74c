// Package wallet 负责签名凭证的加载与关联代币地址推导。
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/betbot/perpsession/pkg/config"
	"github.com/betbot/perpsession/pkg/secretstore"
)

// AssociatedTokenProgramID 关联代币账户程序
var AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

// Wallet 不透明签名者：只暴露公钥与签名能力
type Wallet struct {
	key solana.PrivateKey
}

// New 用私钥构造钱包
func New(key solana.PrivateKey) (*Wallet, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("私钥长度必须为 64 字节，实际 %d", len(key))
	}
	return &Wallet{key: key}, nil
}

// PublicKey 钱包公钥（身份）
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// Sign 对任意载荷签名
func (w *Wallet) Sign(payload []byte) (solana.Signature, error) {
	return w.key.Sign(payload)
}

// ParsePrivateKey 支持两种格式：JSON 字节数组（"[12,34,...]"）或 base58 字符串
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("私钥为空")
	}
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("解析 JSON 私钥失败: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("私钥第 %d 个字节越界: %d", i, v)
			}
			b[i] = byte(v)
		}
		if len(b) != 64 {
			return nil, fmt.Errorf("私钥长度必须为 64 字节，实际 %d", len(b))
		}
		return solana.PrivateKey(b), nil
	}
	key, err := solana.PrivateKeyFromBase58(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 base58 私钥失败: %w", err)
	}
	return key, nil
}

// Load 按优先级加载签名凭证：环境变量私钥 > keygen 文件 > badger 加密存储
func Load(cfg config.WalletConfig) (*Wallet, error) {
	switch {
	case cfg.PrivateKey != "":
		key, err := ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		return New(key)
	case cfg.KeygenFile != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeygenFile)
		if err != nil {
			return nil, fmt.Errorf("读取 keygen 文件失败 %s: %w", cfg.KeygenFile, err)
		}
		return New(key)
	case cfg.SecretDB != "":
		return loadFromSecretStore(cfg)
	}
	return nil, errors.New("未配置任何钱包来源")
}

func loadFromSecretStore(cfg config.WalletConfig) (*Wallet, error) {
	encKey, err := secretstore.ParseKey(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("SECRET_KEY 无效: %w", err)
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.SecretDB,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	defer ss.Close()

	raw, err := ss.Get(cfg.SecretName)
	if err != nil {
		return nil, fmt.Errorf("从 %s 读取 %s 失败: %w", cfg.SecretDB, cfg.SecretName, err)
	}
	key, err := ParsePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// AssociatedTokenAddress 推导 owner 在 mint 上的关联代币地址（纯计算，无网络调用）
func AssociatedTokenAddress(ataProgram, tokenProgram, mint, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		ataProgram,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("推导关联代币地址失败: %w", err)
	}
	return addr, nil
}

// FundingAddress owner 持有抵押币种（SPL Token 程序）的关联代币地址
func FundingAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	return AssociatedTokenAddress(AssociatedTokenProgramID, solana.TokenProgramID, mint, owner)
}
