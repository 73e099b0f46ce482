package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConditionEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartgateway_condition_evaluations_total",
			Help: "Condition evaluations by condition type and outcome.",
		},
		[]string{"type", "matched"},
	)

	RuleExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartgateway_rule_executions_total",
			Help: "Rule executions by aggregate status.",
		},
		[]string{"status"},
	)

	WorkflowParses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartgateway_workflow_parses_total",
			Help: "Natural-language workflow parses by method.",
		},
		[]string{"method"},
	)

	SwitchBotRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartgateway_switchbot_requests_total",
			Help: "SwitchBot API requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	SwitchBotCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartgateway_switchbot_cache_hits_total",
			Help: "SwitchBot reads served from cache.",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartgateway_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(
		ConditionEvaluations,
		RuleExecutions,
		WorkflowParses,
		SwitchBotRequests,
		SwitchBotCacheHits,
		HTTPRequests,
	)
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
