package logging

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogData collects fields and timings for one request.
type LogData struct {
	mu     sync.Mutex
	fields logrus.Fields
}

// NewLogData returns an empty LogData.
func NewLogData() *LogData {
	return &LogData{fields: logrus.Fields{}}
}

// AddData records a field.
func (l *LogData) AddData(key string, value interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields[key] = value
}

// AddTiming starts a timer; calling the returned func records the
// elapsed milliseconds under name.
func (l *LogData) AddTiming(name string) func() {
	start := time.Now()
	return func() {
		l.AddData(name, time.Since(start).Milliseconds())
	}
}

// Entry returns an entry carrying every recorded field.
func (l *LogData) Entry(logger logrus.FieldLogger) *logrus.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	fields := make(logrus.Fields, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return logger.WithFields(fields)
}

// Wrap adapts a handler that returns an error into an http.HandlerFunc
// that logs start, completion and failure with per-request fields.
func Wrap(name string, logger logrus.FieldLogger, handler func(http.ResponseWriter, *http.Request, *LogData) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		data := NewLogData()
		data.AddData("handler", name)
		logger.Debugf("Handler.%s.Start", name)

		stop := data.AddTiming("duration_ms")
		err := handler(w, req, data)
		stop()

		if err != nil {
			data.Entry(logger).WithError(err).Errorf("Handler.%s.Error", name)
			return
		}
		data.Entry(logger).Infof("Handler.%s.Complete", name)
	}
}
