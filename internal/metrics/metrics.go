// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CalDAVRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myberkeley_caldav_requests_total",
		Help: "CalDAV requests sent to the calendar server, by method and status code.",
	}, []string{"method", "status"})

	CalDAVLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "myberkeley_caldav_request_duration_seconds",
		Help:    "Latency of CalDAV requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myberkeley_notifications_sent_total",
		Help: "Notifications delivered, by outcome.",
	}, []string{"outcome"})

	NoticeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myberkeley_notice_email_retries_total",
		Help: "Notice emails rescheduled after a transient SMTP failure.",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myberkeley_emails_total",
		Help: "Emails handed to the SMTP server, by kind and outcome.",
	}, []string{"kind", "outcome"})

	Provisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myberkeley_provisioned_users_total",
		Help: "Provisioning results by synchronization state.",
	}, []string{"state"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myberkeley_http_requests_total",
		Help: "Inbound HTTP requests by route and status code.",
	}, []string{"route", "status"})
)
