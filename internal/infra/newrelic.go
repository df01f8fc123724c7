// README: Optional New Relic application for HTTP APM.
package infra

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewNewRelic returns nil when no license key is configured.
func NewNewRelic(appName, licenseKey string) (*newrelic.Application, error) {
	if licenseKey == "" {
		return nil, nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(appName),
		newrelic.ConfigLicense(licenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("newrelic.NewApplication: %w", err)
	}
	return app, nil
}
