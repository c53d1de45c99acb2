package config

import (
	"crypto/tls"
	"strconv"
	"time"
)

// HTTPSettings is the resolved http_client section used to build the
// remote whitelist client.
type HTTPSettings struct {
	Debug            bool
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
	TLSClientConfig  *tls.Config
	Proxy            string
}

// DefaultHTTPSettings are the whitelist client defaults. A failed fetch falls
// back to local hashes, so retries stay short.
func DefaultHTTPSettings() HTTPSettings {
	return HTTPSettings{
		RetryCount:       3,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 2 * time.Second,
		Timeout:          10 * time.Second,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Resolve merges the configured values over DefaultHTTPSettings. A nil
// section yields the defaults.
func (h *HTTPClient) Resolve() HTTPSettings {
	out := DefaultHTTPSettings()
	if h == nil {
		return out
	}
	out.Debug = BoolOr(h.Debug, out.Debug)
	out.RetryCount = SetThen(h.RetryCount, out.RetryCount)
	out.RetryWaitTime = SetThen(h.RetryWaitTime, out.RetryWaitTime)
	out.RetryMaxWaitTime = SetThen(h.RetryMaxWaitTime, out.RetryMaxWaitTime)
	out.Timeout = SetThen(h.Timeout, out.Timeout)
	out.TLSClientConfig.InsecureSkipVerify = !BoolOr(h.TLSClientConfig.Verify, true)
	if h.Proxy.Host != "" && h.Proxy.Port != 0 {
		out.Proxy = h.Proxy.Host + ":" + strconv.Itoa(h.Proxy.Port)
	}
	return out
}
