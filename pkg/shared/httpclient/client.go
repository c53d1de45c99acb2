package httpclient

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// HclogAdapter adapts an hclog.Logger to the resty logger interface.
type HclogAdapter struct {
	logger hclog.Logger
}

// NewHclogAdapter creates a new adapter that will forward messages to a hclog.Logger.
func NewHclogAdapter(logger hclog.Logger) resty.Logger {
	return &HclogAdapter{logger: logger}
}

func (a *HclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *HclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

func (a *HclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// InitializeRestyClient builds a resty client from the http_client section.
func InitializeRestyClient(logger hclog.Logger, cfg *config.Config) *resty.Client {
	client := resty.New()
	if logger != nil {
		client.SetLogger(NewHclogAdapter(logger))
	}

	var httpConfig *config.HTTPClient
	if cfg != nil {
		httpConfig = &cfg.HTTPClient
	}
	settings := httpConfig.Resolve()
	client.
		SetDebug(settings.Debug).
		SetRetryCount(settings.RetryCount).
		SetRetryWaitTime(settings.RetryWaitTime).
		SetRetryMaxWaitTime(settings.RetryMaxWaitTime).
		SetTimeout(settings.Timeout).
		SetTLSClientConfig(settings.TLSClientConfig)
	if settings.Proxy != "" {
		client.SetProxy(settings.Proxy)
	}

	return client
}
