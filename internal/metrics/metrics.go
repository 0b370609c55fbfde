package metrics

import "expvar"

// 成交与步骤计数，经 /debug/vars 暴露
var (
	FillRuns         = expvar.NewInt("fill_runs")
	FillFailed       = expvar.NewInt("fill_failed")
	FillReverted     = expvar.NewInt("fill_reverted")
	FillPartial      = expvar.NewInt("fill_partial")
	TxSubmitted      = expvar.NewInt("tx_submitted")
	OrdersFilled     = expvar.NewInt("orders_filled")
	StepItemsDone    = expvar.NewInt("step_items_done")
	StepItemsSkipped = expvar.NewInt("step_items_skipped")
)
