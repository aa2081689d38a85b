package bridge

import (
	"errors"
	"fmt"

	"actuatorlink/protocol"
)

var legacyErrors = map[ErrorKind]string{
	KindNotInitialized:  `{"error":"not_initialized"}`,
	KindOffline:         `{"error":"slave_offline","status":"skipped"}`,
	KindTransmitFailed:  `{"error":"i2c_transmit_data_failed","slave_offline":true}`,
	KindReceiveTimeout:  `{"status":"sent","response":"timeout"}`,
	KindInvalidResponse: `{"error":"invalid_response"}`,
	KindEncodeFailed:    `{"error":"json_serialize_failed"}`,
}

// LegacyText renders the outcome of an exchange as the text the
// controller firmware used to return, so callers that search the result
// for "error" keep working. A decoded reply renders as the text the peer
// sent.
func LegacyText(resp protocol.Response, err error) string {
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return fmt.Sprintf(`{"error":%q}`, err.Error())
		}
		if text, ok := legacyErrors[e.Kind]; ok {
			return text
		}
		return fmt.Sprintf(`{"error":%q}`, e.Kind.String())
	}

	switch r := resp.(type) {
	case *protocol.Status:
		if r.Raw != "" {
			return r.Raw
		}
		return string(protocol.EncodeAck(r.Code))
	case protocol.RawText:
		if r.Reason == protocol.SoftReceiveTimeout {
			return legacyErrors[KindReceiveTimeout]
		}
		return r.Text
	}
	return `{"error":"null_command"}`
}
