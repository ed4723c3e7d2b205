package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "copybot",
		Short:         "Copy-trade selected Polymarket wallets with rate limiting and proxy rotation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := logger.Init(cfg.Log); err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径 (.yaml/.yml/.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "覆盖日志级别")

	cmd.AddCommand(
		newRunCmd(opts),
		newSellAllCmd(opts),
		newCheckActivityCmd(opts),
		newBalanceCmd(opts),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
}
