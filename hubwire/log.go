package hubwire

import "github.com/zishang520/engine.io/v2/log"

// Per-area debug loggers. Enable them the usual way through the DEBUG
// environment variable, e.g. DEBUG=hubwire-client:*.
var (
	client_log    = NewLog("hubwire-client:client")
	transport_log = NewLog("hubwire-client:transport")
	delivery_log  = NewLog("hubwire-client:delivery")
	discovery_log = NewLog("hubwire-client:discovery")
	dispatch_log  = NewLog("hubwire-client:dispatch")
)

type Log struct {
	*log.Log
}

func NewLog(prefix string) *Log {
	return &Log{Log: log.NewLog(prefix)}
}

func (l *Log) Debugf(message string, args ...any) {
	l.Debug(message, args...)
}

func (l *Log) Errorf(message string, args ...any) {
	l.Error(message, args...)
}

func (l *Log) Warnf(message string, args ...any) {
	l.Warning(message, args...)
}
