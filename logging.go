package pmbackend

import (
	"log"
	"os"

	"github.com/cockroachdb/redact"
)

// stdLogger is the Logger used when Options.Logger is left nil: plain
// stderr logging, timestamped, in the teacher's "handle owns its own
// logger" shape.
type stdLogger struct {
	*log.Logger
}

func newStdLogger() *stdLogger {
	return &stdLogger{Logger: log.New(os.Stderr, "pmbackend: ", log.LstdFlags)}
}

func (l *stdLogger) Infof(format string, args ...interface{})  { l.Printf(format, args...) }
func (l *stdLogger) Errorf(format string, args ...interface{}) { l.Printf("ERROR: "+format, args...) }
func (l *stdLogger) Fatalf(format string, args ...interface{}) { l.Logger.Fatalf(format, args...) }

// redactKey renders a key for log lines without echoing caller data: keys
// are arbitrary application bytes, not safe to print verbatim into shared
// log output.
func redactKey(key []byte) redact.RedactableString {
	return redact.Sprintf("<key:%d bytes>", len(key))
}
