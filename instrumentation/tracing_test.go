package instrumentation

import (
	"errors"
	"testing"
)

// The helpers must tolerate nil spans because callers skip span creation when tracing is off.
func TestSpanHelpers_NilSafe(t *testing.T) {
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "boom")
	SetSpanAttributes(nil)
	AddOAuthErrorAttributes(nil, "invalid_grant", "code expired")
	AddStorageAttributes(nil, "take", "memory")
	AddHTTPAttributes(nil, "POST", "token", 400)
	AddSecurityAttributes(nil, "192.0.2.1")
}
