package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginsTotal 登录尝试次数，按结果分类
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpr_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// VotesCastTotal 成功写入的选票数
	VotesCastTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kpr_votes_cast_total",
			Help: "Ballots recorded for a role",
		},
	)

	// VoteSubmitDuration 提交选票的耗时
	VoteSubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpr_vote_submit_duration_seconds",
			Help:    "Vote submission latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// ResultsSubscribers 当前订阅实时结果的连接数
	ResultsSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kpr_results_subscribers",
			Help: "Open live results connections",
		},
	)

	// StaleSessionsReaped 被清理的过期会话锁
	StaleSessionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kpr_stale_sessions_reaped_total",
			Help: "Active-session locks removed by the reaper",
		},
	)
)
