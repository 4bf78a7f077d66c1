// Package httpclient is the REST client shared by the conversation, signature
// and image generation calls.
//
// Built on go-resty/resty with a go-retryablehttp transport:
//   - retries with exponential backoff on connection errors and 5xx
//   - transparent gzip via klauspost/compress/gzhttp
//   - a token bucket limiter from golang.org/x/time/rate
//   - a circuit breaker that fails fast after repeated upstream failures
//   - sonic for JSON bodies
//
// Example Usage:
//
//	c := httpclient.New(httpclient.OptionsFromConfig(cfg))
//	req, err := c.Request(ctx)
//	if err != nil {
//	    return err
//	}
//	resp, err := c.Execute("conversation_create", func() (*resty.Response, error) {
//	    return req.Get("/turing/conversation/create")
//	})
package httpclient
