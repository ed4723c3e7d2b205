package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/betbot/copybot/clob/client"
	"github.com/betbot/copybot/clob/types"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/monitor"
	"github.com/betbot/copybot/internal/positions"
	"github.com/betbot/copybot/pkg/logger"
)

func newSellAllCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sell-all",
		Short: "Close every open position with one FOK sell per position",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ts, err := newTradingStack(ctx, opts.cfg, nil)
			if err != nil {
				return err
			}
			defer ts.Close()

			open, err := ts.positions.Positions(ctx, ts.wallet.Hex())
			if err != nil {
				return errors.Wrap(err, "获取持仓失败")
			}
			printPositions(cmd.OutOrStdout(), open)
			if dryRun {
				return nil
			}

			rep, err := ts.engine.SellAll(ctx, open)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n持仓 %d，成功 %d，跳过 %d，失败 %d\n", rep.Open, rep.Sold, rep.Skipped, rep.Failed)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ASSET\tSIZE\tSOLD\tPRICE\tREASON")
			for _, o := range rep.Outcomes {
				fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.4f\t%s\n", shortID(o.Asset), o.Size, o.Sold, o.Price, o.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只列出持仓，不下单")
	return cmd
}

func newCheckActivityCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "check-activity [address...]",
		Short: "Report how recently each trader has traded",
		RunE: func(cmd *cobra.Command, args []string) error {
			addresses := args
			if len(addresses) == 0 {
				addresses = opts.cfg.Traders
			}
			if len(addresses) == 0 {
				return fmt.Errorf("未指定交易员地址，也未配置 USER_ADDRESSES")
			}
			rs, err := newReadStack(opts.cfg, nil)
			if err != nil {
				return err
			}
			activities := monitor.NewActivityClient(opts.cfg.DataAPI, rs.reads)

			reports := make([]monitor.ActivityReport, 0, len(addresses))
			for _, addr := range addresses {
				addr = strings.ToLower(strings.TrimSpace(addr))
				trades, err := activities.Activities(cmd.Context(), addr, string(domain.ActivityTrade), limit)
				if err != nil {
					logger.Warnf("获取 %s 的活动失败: %v", addr, err)
					continue
				}
				reports = append(reports, monitor.Classify(addr, trades, time.Now()))
			}
			return printActivity(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "每个交易员拉取的成交条数")
	return cmd
}

func newBalanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show USDC balance and open positions of a wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			wallet := cfg.Wallet.FunderAddress
			if len(args) == 1 {
				wallet = args[0]
			}
			if !common.IsHexAddress(wallet) {
				return fmt.Errorf("地址无效: %q", wallet)
			}
			svc, closeFn, err := newPositionsService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			addr := common.HexToAddress(wallet)
			bal, err := svc.Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			open, err := svc.Positions(cmd.Context(), addr.Hex())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "钱包 %s\nUSDC 余额 %.2f\n\n", addr.Hex(), bal)
			printPositions(cmd.OutOrStdout(), open)
			return nil
		},
	}
}

// newPositionsService 只读查询，不需要私钥
func newPositionsService(ctx context.Context, opts *rootOptions) (*positions.Service, func(), error) {
	cfg := opts.cfg
	rs, err := newReadStack(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	collateral, err := client.CollateralAddress(types.Chain(cfg.Clob.ChainID))
	if err != nil {
		return nil, nil, err
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "连接 RPC 失败 %s", cfg.RPCURL)
	}
	svc, err := positions.New(cfg.DataAPI, rs.reads, eth, collateral, logger.Component("positions"))
	if err != nil {
		eth.Close()
		return nil, nil, err
	}
	return svc, eth.Close, nil
}

func printPositions(out io.Writer, open []domain.OwnPosition) {
	if len(open) == 0 {
		fmt.Fprintln(out, "没有持仓")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tOUTCOME\tSIZE\tAVG\tCUR\tVALUE")
	total := 0.0
	for _, p := range open {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.4f\t%.4f\t%.2f\n", truncate(p.Title, 40), p.Outcome, p.Size, p.AvgPrice, p.CurPrice, p.CurrentValue)
		total += p.CurrentValue
	}
	fmt.Fprintf(w, "\t\t\t\t合计\t%.2f\n", total)
	_ = w.Flush()
}

func printActivity(out io.Writer, reports []monitor.ActivityReport) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATUS\tLAST TRADE\tAGO\t24H\t7D\tFETCHED")
	for _, r := range reports {
		last, ago := "-", "-"
		if !r.LastTrade.IsZero() {
			last = r.LastTrade.Format(time.RFC3339)
			ago = r.SinceLastTrade.Truncate(time.Minute).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n", r.Address, r.Status, last, ago, r.Last24h, r.Last7d, r.Total)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
