package replicate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/store"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/ratelimit"
	"github.com/betbot/copybot/pkg/sdk/api"
)

// ExchangeClient 订单提交接口（CLOB）
type ExchangeClient interface {
	PlaceOrderFAK(ctx context.Context, tokenID string, side api.Side, size, price decimal.Decimal, negRisk bool) (*api.OrderResponse, error)
}

// OrderLookup 订单状态查询接口，启动对账用
type OrderLookup interface {
	GetOrder(ctx context.Context, orderID string) (*api.OpenOrder, error)
}

// SubmitConfig 提交重试配置
type SubmitConfig struct {
	MaxAttempts    int           // 最大尝试次数（含首次），默认 5
	InitialBackoff time.Duration // 首次重试退避，默认 500ms
	MaxBackoff     time.Duration // 退避上限，默认 10s
	DryRun         bool          // 纸交易模式：不调用交易所，直接标记成交
}

// Submitter 订单提交器
//
// 恰好一次语义：调用交易所前先以 trade_id 为键落盘 pending 记录；
// 同一 trade_id 已有记录时直接返回，不重复提交（崩溃重启后的恢复路径）
type Submitter struct {
	cfg      SubmitConfig
	exchange ExchangeClient
	orders   *store.OrderStore
	history  *store.HistoryStore
	limiter  *ratelimit.Manager
	log      *logrus.Entry
}

// NewSubmitter 创建提交器。history 可为 nil（不记录成交历史）
func NewSubmitter(cfg SubmitConfig, exchange ExchangeClient, orders *store.OrderStore, history *store.HistoryStore, limiter *ratelimit.Manager) *Submitter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	return &Submitter{
		cfg:      cfg,
		exchange: exchange,
		orders:   orders,
		history:  history,
		limiter:  limiter,
		log:      logger.WithField("component", "submitter"),
	}
}

// Submit 为一笔已接受的源交易提交镜像订单
//
// size 为跟单金额（USDC），按源交易价格换算为份额后以 FAK 提交。
// 瞬时失败带指数退避重试，交易所明确拒绝立即失败并返回 ErrPermanent
func (s *Submitter) Submit(ctx context.Context, trade *domain.SourceTrade, size decimal.Decimal) (*domain.OrderRecord, error) {
	// 价格非正的脏数据在份额换算时会除以零，直接按永久失败拒绝
	if !trade.Price.IsPositive() {
		return nil, fmt.Errorf("%w: 源交易 %s 价格非正（%s）", domain.ErrPermanent, trade.ID, trade.Price)
	}

	// 恢复路径：同一笔源交易已有记录时绝不重复提交
	if existing, err := s.orders.Get(trade.ID); err == nil {
		s.log.Infof("源交易 %s 已有订单记录（%s），跳过提交", trade.ID, existing.Status)
		return existing, fmt.Errorf("%w: %s", domain.ErrDuplicateTrade, trade.ID)
	} else if !errors.Is(err, store.ErrOrderNotFound) {
		return nil, fmt.Errorf("查询订单记录失败: %w", err)
	}

	record := &domain.OrderRecord{
		SourceTradeID: trade.ID,
		Trader:        trade.Trader,
		Market:        trade.Market,
		TokenID:       trade.TokenID,
		Side:          trade.Side,
		Size:          size,
		ClientID:      uuid.NewString(),
		Status:        domain.OrderStatusPending,
		CreatedAt:     time.Now(),
	}

	// 先落盘再提交
	if err := s.orders.Put(record); err != nil {
		return nil, fmt.Errorf("持久化订单记录失败: %w", err)
	}

	if s.cfg.DryRun {
		record.Status = domain.OrderStatusFilled
		record.OrderID = "dry-run-" + record.ClientID
		if err := s.orders.Put(record); err != nil {
			return nil, err
		}
		s.recordFill(ctx, trade, record)
		s.log.Infof("[dry-run] %s %s %s USDC @ %s（%s）", trade.Side, trade.Market, size, trade.Price, trade.Title)
		return record, nil
	}

	return s.submitWithRetry(ctx, trade, record)
}

// ReconcilePending 启动时对账崩溃前遗留的 pending 订单记录
//
// 有订单号的记录向交易所查询实际状态：已撮合标记 filled，仍挂着保持
// pending，交易所查不到（FAK 已终结）标记 failed。没有订单号的记录
// 说明崩溃发生在提交结果确认之前，成交与否无法判定，保持 pending
// 并告警，留给运维处理。lookup 可为 nil（dry-run 模式），此时只告警
func (s *Submitter) ReconcilePending(ctx context.Context, lookup OrderLookup) error {
	pending, err := s.orders.ListPending()
	if err != nil {
		return fmt.Errorf("读取 pending 订单失败: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.log.Warnf("发现 %d 条上次运行遗留的 pending 订单，开始对账", len(pending))

	for _, record := range pending {
		if record.OrderID == "" {
			s.log.Warnf("订单记录 %s（%s）没有订单号，提交结果未知，保持 pending", record.SourceTradeID, shortAddr(record.Trader))
			continue
		}
		if lookup == nil {
			s.log.Warnf("订单 %s 状态待确认（无交易所连接）", record.OrderID)
			continue
		}

		open, err := lookup.GetOrder(ctx, record.OrderID)
		switch {
		case err == nil && open.Status == "matched":
			record.Status = domain.OrderStatusFilled
			if perr := s.orders.Put(record); perr != nil {
				s.log.Errorf("持久化对账结果出错: %v", perr)
			}
			s.log.Infof("对账：订单 %s 已撮合，标记成交", record.OrderID)

		case err == nil:
			s.log.Infof("对账：订单 %s 仍为 %s，保持 pending", record.OrderID, open.Status)

		case isNotFound(err):
			record.Status = domain.OrderStatusFailed
			record.FailReason = "对账时交易所已无此订单"
			if perr := s.orders.Put(record); perr != nil {
				s.log.Errorf("持久化对账结果出错: %v", perr)
			}
			s.log.Warnf("对账：订单 %s 已不在交易所，标记失败", record.OrderID)

		default:
			s.log.Warnf("对账：查询订单 %s 失败: %v", record.OrderID, err)
		}
	}

	return nil
}

func isNotFound(err error) bool {
	var apiErr *api.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

func (s *Submitter) submitWithRetry(ctx context.Context, trade *domain.SourceTrade, record *domain.OrderRecord) (*domain.OrderRecord, error) {
	// USDC 金额换算为份额
	tokens := record.Size.Div(trade.Price)

	backoff := s.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx, "clob:order:post"); err != nil {
			return record, err
		}

		resp, err := s.exchange.PlaceOrderFAK(ctx, trade.TokenID, api.Side(trade.Side), tokens, trade.Price, false)

		switch classify(resp, err) {
		case outcomeSuccess:
			record.Status = domain.OrderStatusFilled
			if resp.Status == "live" || resp.Status == "delayed" {
				record.Status = domain.OrderStatusPending
			}
			record.OrderID = resp.OrderID
			if err := s.orders.Put(record); err != nil {
				return record, err
			}
			s.recordFill(ctx, trade, record)
			s.log.Infof("跟单成交：%s %s %s USDC @ %s，订单 %s", trade.Side, trade.Market, record.Size, trade.Price, record.OrderID)
			return record, nil

		case outcomePermanent:
			reason := errMessage(resp, err)
			record.Status = domain.OrderStatusFailed
			record.FailReason = reason
			if perr := s.orders.Put(record); perr != nil {
				s.log.Errorf("持久化失败状态出错: %v", perr)
			}
			metrics.OrdersFailed.Add(1)
			s.log.Warnf("订单被拒绝（不重试）：%s", reason)
			return record, fmt.Errorf("%w: %s", domain.ErrPermanent, reason)

		case outcomeTransient:
			lastErr = err
			if lastErr == nil {
				lastErr = fmt.Errorf("%s", errMessage(resp, err))
			}
			record.RetryCount++
			if perr := s.orders.Put(record); perr != nil {
				s.log.Errorf("持久化重试计数出错: %v", perr)
			}
			metrics.OrderRetries.Add(1)

			if attempt == s.cfg.MaxAttempts {
				break
			}

			s.log.Warnf("提交失败（第 %d/%d 次）：%v，%s 后重试", attempt, s.cfg.MaxAttempts, lastErr, backoff)
			select {
			case <-ctx.Done():
				return record, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
		}
	}

	// 重试耗尽
	record.Status = domain.OrderStatusFailed
	record.FailReason = fmt.Sprintf("重试 %d 次后仍失败: %v", s.cfg.MaxAttempts, lastErr)
	if perr := s.orders.Put(record); perr != nil {
		s.log.Errorf("持久化失败状态出错: %v", perr)
	}
	metrics.OrdersFailed.Add(1)
	return record, fmt.Errorf("%w: %v", domain.ErrTransient, lastErr)
}

type submitOutcome int

const (
	outcomeSuccess submitOutcome = iota
	outcomeTransient
	outcomePermanent
)

// classify 区分提交结果：
//   - 网络错误 / 429 / 5xx → 瞬时，可重试
//   - 其他 4xx / 交易所返回 success=false → 永久拒绝
func classify(resp *api.OrderResponse, err error) submitOutcome {
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Transient() {
				return outcomeTransient
			}
			return outcomePermanent
		}
		// 非 HTTP 状态错误：连接超时、DNS 失败等
		return outcomeTransient
	}
	if resp == nil {
		return outcomeTransient
	}
	if !resp.Success {
		return outcomePermanent
	}
	return outcomeSuccess
}

func errMessage(resp *api.OrderResponse, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil && resp.ErrorMsg != "" {
		return resp.ErrorMsg
	}
	return "unknown error"
}

func (s *Submitter) recordFill(ctx context.Context, trade *domain.SourceTrade, record *domain.OrderRecord) {
	if s.history == nil || record.Status != domain.OrderStatusFilled {
		return
	}
	fill := &store.CopyFill{
		SourceTradeID: trade.ID,
		Trader:        trade.Trader,
		Market:        trade.Market,
		Title:         trade.Title,
		Outcome:       trade.Outcome,
		Side:          trade.Side,
		Size:          record.Size,
		Price:         trade.Price,
		OrderID:       record.OrderID,
		FilledAt:      time.Now(),
	}
	if err := s.history.RecordFill(ctx, fill); err != nil {
		s.log.Warnf("记录成交历史失败: %v", err)
	}
}
