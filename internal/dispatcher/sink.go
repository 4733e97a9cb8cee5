package dispatcher

import (
	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/object"
)

// SinkLog routes one handler-produced log intent to logrus at the
// matching level. A fatal-level intent is logged, not process-exiting;
// only a genuine dispatcher fault (missing engine wiring) exits.
func SinkLog(entry object.LogData) {
	fields := log.Fields{"gateway": entry.GatewayName}
	switch entry.Level {
	case object.LogDebug:
		log.WithFields(fields).Debug(entry.Msg)
	case object.LogWarn:
		log.WithFields(fields).Warn(entry.Msg)
	case object.LogError, object.LogFatal:
		log.WithFields(fields).Error(entry.Msg)
	default:
		log.WithFields(fields).Info(entry.Msg)
	}
}

// SinkLogs applies SinkLog to every entry.
func SinkLogs(entries []object.LogData) {
	for _, e := range entries {
		SinkLog(e)
	}
}
