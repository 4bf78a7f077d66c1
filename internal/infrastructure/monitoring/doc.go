/*
Package monitoring provides Prometheus metrics for the hub client and the
serve-mode HTTP server.

# Metrics

  - copilot_sessions_active, copilot_sessions_total{outcome}
  - copilot_hub_records_total{direction,type}
  - copilot_events_total{kind}
  - copilot_image_jobs_active, copilot_image_jobs_total{outcome}, copilot_image_poll_attempts
  - copilot_upstream_calls_total{endpoint,status}, copilot_upstream_duration_seconds{endpoint}
  - copilot_signature_lookups_total{result}
  - copilot_http_* and copilot_ws_* for serve mode

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	timer := monitoring.NewTimer(metrics, "conversation_create")
	resp, err := req.Get(url)
	timer.StopErr(err)

All recording methods accept a nil receiver.
*/
package monitoring
