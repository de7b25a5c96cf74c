package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/betbot/perpsession/pkg/secretstore"
)

func newRootCmd() *cobra.Command {
	var (
		inPath    string
		dbPath    string
		secretKey string
		prefix    string
		only      []string
	)
	cmd := &cobra.Command{
		Use:   "keyimport",
		Short: "Import .env entries (e.g. BOT_PRIVATE_KEY) into the encrypted badger secret store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyBytes, err := secretstore.ParseKey(secretKey)
			if err != nil {
				return err
			}
			if keyBytes == nil {
				return fmt.Errorf("secret key is required: set SECRET_KEY or pass --secret-key")
			}
			kv, err := godotenv.Read(inPath)
			if err != nil {
				return fmt.Errorf("读取 %s 失败: %w", inPath, err)
			}

			ss, err := secretstore.Open(secretstore.OpenOptions{
				Path:          dbPath,
				EncryptionKey: keyBytes,
			})
			if err != nil {
				return err
			}
			defer ss.Close()

			written, err := importEntries(ss, kv, prefix, only)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "已导入 %d 项到 badger：%s（前缀 %s）\n", written, dbPath, prefix)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", ".env", "input .env file path")
	cmd.Flags().StringVar(&dbPath, "badger", getenv("SECRET_DB", "data/secrets.badger"), "badger secrets db path")
	cmd.Flags().StringVar(&secretKey, "secret-key", getenv("SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
	cmd.Flags().StringVar(&prefix, "prefix", "env/", "key prefix inside badger")
	cmd.Flags().StringSliceVar(&only, "only", nil, "only import these keys (default: all)")
	return cmd
}

type putter interface {
	Put(key, val string) error
}

// importEntries 按键名排序写入，返回写入条数
func importEntries(ss putter, kv map[string]string, prefix string, only []string) (int, error) {
	allowed := make(map[string]bool, len(only))
	for _, k := range only {
		allowed[strings.TrimSpace(k)] = true
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		if len(allowed) > 0 && !allowed[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if err := ss.Put(prefix+k, kv[k]); err != nil {
			return i, fmt.Errorf("写入 %s 失败: %w", k, err)
		}
	}
	return len(keys), nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}
