package bridge

import (
	"errors"
	"fmt"
	"testing"

	"actuatorlink/protocol"
)

func TestLegacyText(t *testing.T) {
	tests := []struct {
		name string
		resp protocol.Response
		err  error
		want string
	}{
		{"ack", &protocol.Status{Code: 1, Raw: `{"s":1}`}, nil, `{"s":1}`},
		{"status without text", &protocol.Status{Code: -1}, nil, `{"s":-1}`},
		{"raw text", protocol.RawText{Text: "OK", Reason: protocol.SoftDecodeFailed}, nil, "OK"},
		{"receive timeout", protocol.RawText{Text: protocol.SentTimeout, Reason: protocol.SoftReceiveTimeout}, nil, `{"status":"sent","response":"timeout"}`},
		{"offline", nil, newError(KindOffline, "", nil), `{"error":"slave_offline","status":"skipped"}`},
		{"wrapped offline", nil, fmt.Errorf("status: %w", newError(KindOffline, "", nil)), `{"error":"slave_offline","status":"skipped"}`},
		{"encode", nil, newError(KindEncodeFailed, "", nil), `{"error":"json_serialize_failed"}`},
		{"canceled", nil, newError(KindCanceled, "", nil), `{"error":"canceled"}`},
		{"foreign error", nil, errors.New("boom"), `{"error":"boom"}`},
		{"nothing", nil, nil, `{"error":"null_command"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LegacyText(tt.resp, tt.err); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("nack")
	err := newError(KindTransmitFailed, "probe", cause)

	if !errors.Is(err, ErrTransmitFailed) {
		t.Error("Expected match on kind")
	}
	if errors.Is(err, ErrOffline) {
		t.Error("Unexpected match on another kind")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be reachable")
	}
	if KindOf(fmt.Errorf("wrapped: %w", err)) != KindTransmitFailed {
		t.Errorf("KindOf returned %v", KindOf(err))
	}
	if err.Error() != "transmit_failed: probe: nack" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
