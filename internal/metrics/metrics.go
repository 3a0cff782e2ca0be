// Package metrics 市场节点的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "nftmarket"

// Registry 独立注册表，避免测试间共享全局默认注册表
var Registry = prometheus.NewRegistry()

var (
	ItemsListed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_listed_total",
		Help:      "成功挂单数",
	})
	Purchases = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchases_total",
		Help:      "成功成交数",
	})
	PurchaseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchase_failures_total",
		Help:      "失败的购买，按错误码分类",
	}, []string{"reason"})
	Refunds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refunds_total",
		Help:      "结算失败后退款给买家的次数",
	})
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "写入事件日志的事件数",
	}, []string{"type"})
	SnapshotSaves = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_saves_total",
		Help:      "开发节点快照保存次数",
	})
	SnapshotLoads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_loads_total",
		Help:      "开发节点快照恢复次数",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ItemsListed,
		Purchases,
		PurchaseFailures,
		Refunds,
		EventsPublished,
		SnapshotSaves,
		SnapshotLoads,
	)
}
