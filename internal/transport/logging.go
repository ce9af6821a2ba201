// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "jackconnector/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct {
	logger *applog.Logger
}

func NewLoggingTransport() *LoggingTransport {
	l := applog.With("transport")
	l.Infof("using logging transport")
	return &LoggingTransport{logger: l}
}

// Send logs the JSON form of data, or its Go form if it does not marshal.
func (lt *LoggingTransport) Send(data any) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	if b, err := json.Marshal(data); err == nil {
		lt.logger.Debugf("%s", b)
	} else {
		lt.logger.Debugf("%T: %+v", data, data)
	}
	return nil
}

func (lt *LoggingTransport) Close() error {
	lt.logger.Debugf("logging transport closed")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
