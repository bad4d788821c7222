// Package stream consumes the backend's push log channel and maps its
// loosely-shaped payloads into uniform log entries.
package stream

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/swipswaps/paddle-ocr/internal/models"
)

// messageFields is the priority-ordered list of field names a payload
// may carry its message under. "msg" first among the short names: it is
// what the stock backend actually emits.
var messageFields = []string{"message", "msg", "log", "content", "stdout", "stderr", "status", "error"}

// timestampFields are scanned for a server-side timestamp.
var timestampFields = []string{"ts", "timestamp", "time"}

// levelFields are scanned for a severity tag.
var levelFields = []string{"level", "severity"}

// Normalize maps one raw push-channel payload to a log entry. The
// second return is false when the payload is empty or carries nothing
// worth showing; such payloads are dropped silently.
func Normalize(data []byte, received time.Time) (models.LogEntry, bool) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return models.LogEntry{}, false
	}

	parsed := gjson.Parse(text)
	if !gjson.Valid(text) || (parsed.Type != gjson.JSON && parsed.Type != gjson.String) {
		// Not structured data: the raw text is the message.
		return models.LogEntry{
			Timestamp: received,
			Message:   "[RAW] " + text,
		}, true
	}

	// A bare JSON string is its own message.
	if parsed.Type == gjson.String {
		msg := strings.TrimSpace(parsed.String())
		if msg == "" {
			return models.LogEntry{}, false
		}
		return models.LogEntry{Timestamp: received, Message: msg}, true
	}

	if parsed.IsArray() {
		return models.LogEntry{Timestamp: received, Message: parsed.Raw}, true
	}

	msg := ""
	for _, field := range messageFields {
		if v := parsed.Get(field); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				msg = s
				break
			}
		}
	}

	if msg == "" {
		// No recognized message field. A non-empty object is still
		// information; serialize it whole rather than swallow it.
		if len(parsed.Map()) == 0 {
			return models.LogEntry{}, false
		}
		return models.LogEntry{
			Timestamp: entryTime(parsed, received),
			Message:   parsed.Raw,
		}, true
	}

	for _, field := range levelFields {
		level := strings.TrimSpace(parsed.Get(field).String())
		if level == "" {
			// An empty tag does not claim the slot; a later candidate
			// may still carry the severity.
			continue
		}
		if !strings.HasPrefix(msg, "[") {
			msg = "[" + strings.ToUpper(level) + "] " + msg
		}
		break
	}

	return models.LogEntry{
		Timestamp: entryTime(parsed, received),
		Message:   msg,
	}, true
}

// entryTime prefers the server-supplied timestamp, falling back to the
// local receive time. The backend emits epoch seconds with a fractional
// part; millisecond epochs from other producers are recognized by
// magnitude.
func entryTime(parsed gjson.Result, received time.Time) time.Time {
	for _, field := range timestampFields {
		v := parsed.Get(field)
		if !v.Exists() {
			continue
		}
		switch v.Type {
		case gjson.Number:
			f := v.Float()
			if f <= 0 {
				continue
			}
			if f > 1e12 { // epoch milliseconds
				return time.UnixMilli(int64(f))
			}
			sec := int64(f)
			nsec := int64((f - float64(sec)) * float64(time.Second))
			return time.Unix(sec, nsec)
		case gjson.String:
			if t, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
				return t
			}
		}
	}
	return received
}
