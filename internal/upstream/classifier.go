package upstream

import (
	"context"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrorCode labels the failure class of an upstream call.
type ErrorCode string

const (
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeConnectionRefused ErrorCode = "CONNECTION_REFUSED"
	CodeHostNotFound      ErrorCode = "HOST_NOT_FOUND"
	CodeHTTPError         ErrorCode = "HTTP_ERROR"
	CodeUnknown           ErrorCode = "UNKNOWN"
)

// Error is the canonical envelope every upstream failure is mapped to.
// Callers never see raw transport errors.
type Error struct {
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	Code    ErrorCode `json:"code"`
	URL     string    `json:"url,omitempty"`
	Method  string    `json:"method,omitempty"`
	Body    string    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream request failed: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream request failed: %s: %s", e.Code, e.Message)
}

// CallContext describes the call an error happened in, for logging and reporting.
type CallContext struct {
	Service     string
	Operation   string
	RequestData map[string]interface{}
}

// ReportSink receives reportable failures. Crash aggregation is a
// collaborator concern; the default sink drops everything.
type ReportSink interface {
	Report(err error, tags map[string]string, extra map[string]interface{})
}

type NoopSink struct{}

func (NoopSink) Report(err error, tags map[string]string, extra map[string]interface{}) {}

// Classifier turns transport and protocol failures into *Error, logs them at
// a severity matching the status, and forwards reportable ones to the sink
// with sensitive request fields redacted.
type Classifier struct {
	log  zerolog.Logger
	sink ReportSink
}

func NewClassifier(log logger.Logger, sink ReportSink) *Classifier {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Classifier{
		log:  log.With().Str("module", "upstream").Logger(),
		sink: sink,
	}
}

// Classify maps a raw transport error onto the canonical envelope.
func (c *Classifier) Classify(err error, method, url string) *Error {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr
	}

	out := &Error{Message: err.Error(), Code: CodeUnknown, Method: method, URL: url}

	var netErr net.Error
	var dnsErr *net.DNSError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Message = "request timed out"
		out.Code = CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Message = "request timed out"
		out.Code = CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		out.Message = "connection refused"
		out.Code = CodeConnectionRefused
	case errors.As(err, &dnsErr):
		out.Message = "host not found"
		out.Code = CodeHostNotFound
	}

	return out
}

// ClassifyStatus maps a non-success HTTP response onto the canonical envelope.
func (c *Classifier) ClassifyStatus(status int, body []byte, method, url string) *Error {
	return &Error{
		Message: "upstream returned a non-success status",
		Status:  status,
		Code:    CodeHTTPError,
		Method:  method,
		URL:     url,
		Body:    string(body),
	}
}

// ShouldReport is true for server errors, connection-level failures and
// authentication problems. Ordinary client errors are logged but not escalated.
func (c *Classifier) ShouldReport(e *Error) bool {
	if e.Status >= 500 {
		return true
	}
	if e.Status == 401 || e.Status == 403 {
		return true
	}
	switch e.Code {
	case CodeTimeout, CodeConnectionRefused, CodeHostNotFound:
		return true
	}
	return false
}

// Handle logs the classified error, reports it when warranted, and returns it.
func (c *Classifier) Handle(e *Error, call CallContext) *Error {
	evt := c.log.Error()
	if e.Status >= 400 && e.Status < 500 {
		evt = c.log.Warn()
	}
	evt.
		Str("service", call.Service).
		Str("operation", call.Operation).
		Str("code", string(e.Code)).
		Int("status", e.Status).
		Str("method", e.Method).
		Str("url", e.URL).
		Msg(e.Message)

	if c.ShouldReport(e) {
		c.sink.Report(e,
			map[string]string{
				"error_type": "external_system",
				"service":    call.Service,
				"operation":  call.Operation,
			},
			map[string]interface{}{
				"request_data": Sanitize(call.RequestData),
			})
	}

	return e
}

// Envelope produces the stable external error shape, identical for every
// error class.
func Envelope(e *Error, call CallContext) map[string]interface{} {
	details := e.Message
	if e.Body != "" {
		details = e.Body
	}
	code := string(e.Code)
	if code == "" {
		code = "EXTERNAL_ERROR"
	}
	return map[string]interface{}{
		"success":   false,
		"error":     call.Service + " " + call.Operation + " failed",
		"code":      code,
		"details":   details,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

var sensitiveKeys = []string{"password", "token", "secret", "key", "authorization"}

// Sanitize masks values whose keys look sensitive, recursively.
func Sanitize(data interface{}) interface{} {
	m, ok := data.(map[string]interface{})
	if !ok {
		return data
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = "***MASKED***"
			continue
		}
		out[k] = Sanitize(v)
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
