package delivery

import (
	"github.com/opd-ai/delivery/limits"
	"github.com/sirupsen/logrus"
)

// Option configures a Session.
type Option func(*Session)

// WithMaxFileSize sets the largest file the session sends or accepts.
// Values outside the limits package bounds are ignored.
func WithMaxFileSize(size int64) Option {
	return func(s *Session) {
		if err := limits.ValidateLimit(size); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "WithMaxFileSize",
				"value":       size,
				"error":       err.Error(),
				"using_value": s.maxFileSize,
			}).Warn("Invalid max file size, using default")
			return
		}
		s.maxFileSize = size
	}
}

// WithReceiveRetention keeps the last n received packets for Received
// lookups and duplicate suppression. With n == 0, the default, a packet is
// dropped as soon as its receive.success dispatch returns.
func WithReceiveRetention(n int) Option {
	return func(s *Session) {
		if n < 0 {
			n = 0
		}
		s.retention = n
	}
}
