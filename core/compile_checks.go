package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ StatusSource    = (*FederationBridge)(nil)
	_ EventListener   = ListenerFuncs{}
	_ MetricsRecorder = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
