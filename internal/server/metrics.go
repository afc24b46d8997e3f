package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xviarchive_scans_started_total",
		Help: "Scan tasks started through the API.",
	})
	actionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xviarchive_actions_started_total",
		Help: "Action tasks started through the API, by action.",
	}, []string{"action"})
	taskBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xviarchive_task_busy_total",
		Help: "Requests rejected because a task was already running.",
	})
)
