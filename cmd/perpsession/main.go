package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)
	cmd := &cobra.Command{
		Use:   "perpsession",
		Short: "Run the scripted perp session: price, slippage, account bootstrap, open, reduce, close",
		Long: `perpsession 按固定顺序执行一次永续合约会话：
  读取标记价格 -> 估算滑点 -> 确保保证金账户存在（必要时建户入金）
  -> 开多 -> 反向减仓 -> 平仓。任何一步失败即退出，退出码 1。`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), options{
				configPath: configPath,
				envFile:    envFile,
				out:        cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径（.yaml/.yml/.json，可选）")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", ".env 文件路径（不存在则忽略）")
	return cmd
}

func main() {
	// SIGINT/SIGTERM 取消运行 context，正在进行的步骤随之失败
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
