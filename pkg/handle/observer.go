package handle

import "go.uber.org/zap"

// LogObserver logs handle lifecycle events at debug level.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an observer writing to log.
func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) OnHandleEvent(e Event) {
	if ce := o.log.Check(zap.DebugLevel, "handle "+e.Type.String()); ce != nil {
		ce.Write(
			zap.Stringer("handle", e.Handle),
			zap.Stringer("owner", e.Owner),
			zap.Stringer("kind", e.Kind),
		)
	}
}
