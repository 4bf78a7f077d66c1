// Package config provides 12-factor configuration for the Copilot hub client.
//
// Values start from Default, are optionally overlaid by a YAML or TOML file,
// and are finally overlaid by environment variables.
//
// Configuration Sections:
//   - Bing: REST endpoints and bundle version
//   - Hub: WebSocket hub URL and timeouts
//   - HTTP: upstream client timeouts, retries and rate limit
//   - Images: image generation polling interval and budgets
//   - Auth: cookie header or cookie export file
//   - Logging: log level and output format
//   - Server, RateLimit: serve mode
//
// Example Usage:
//
//	cfg, err := config.LoadFile("copilot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Environment Variables:
//   - BING_BASE_URL, BING_SYDNEY_URL, BING_BUNDLE_VERSION
//   - HUB_URL, HUB_HANDSHAKE_TIMEOUT, HUB_READ_TIMEOUT, HUB_STOP_INVOCATION_ID
//   - HTTP_TIMEOUT, HTTP_RETRY_COUNT, HTTP_RETRY_WAIT, HTTP_RETRY_MAX_WAIT, HTTP_RATE_LIMIT, HTTP_USER_AGENT
//   - IMAGE_POLL_INTERVAL, IMAGE_INLINE_ATTEMPTS, IMAGE_DRAIN_ATTEMPTS
//   - COPILOT_COOKIE, COPILOT_COOKIE_FILE
//   - LOG_LEVEL, LOG_DEV, PORT, HOST, RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
