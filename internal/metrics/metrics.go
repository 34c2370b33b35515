package metrics

import "expvar"

var (
	PollCycles     = expvar.NewInt("poll_cycles")
	PollErrors     = expvar.NewInt("poll_errors")
	TradesObserved = expvar.NewInt("trades_observed")
	TradesCopied   = expvar.NewInt("trades_copied")
	TradesRejected = expvar.NewInt("trades_rejected")
	OrdersFailed   = expvar.NewInt("orders_failed")
	OrderRetries   = expvar.NewInt("order_retries")
	BudgetRejects  = expvar.NewInt("budget_rejects")
)
