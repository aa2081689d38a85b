package protocol

import "errors"

// ErrNoTerminator is returned by Frame when the buffer holds neither a
// closing brace nor an embedded NUL.
var ErrNoTerminator = errors.New("no response terminator found")

// Frame locates the single reply inside a receive buffer. The peer
// sends no length prefix, so the reply ends at the first '}'
// (inclusive) or, failing that, at the first NUL past offset 0
// (exclusive). A NUL at offset 0 is not a terminator.
//
// The scan stops at the first brace, so a reply containing a nested
// object (the status "g" array) is cut after the first slot entry.
// Decode recovers from that cut; see Decode.
func Frame(buf []byte) ([]byte, error) {
	for i, b := range buf {
		if b == '}' {
			return buf[:i+1], nil
		}
		if b == 0 && i > 0 {
			return buf[:i], nil
		}
	}
	return nil, ErrNoTerminator
}

// Cap limits a framed reply to max bytes and reports whether anything
// was dropped.
func Cap(frame []byte, max int) ([]byte, bool) {
	if len(frame) > max {
		return frame[:max], true
	}
	return frame, false
}

// Sanitize returns frame as text with every byte outside printable
// ASCII, other than '\n', '\t' and '\r', replaced by Placeholder. The
// input is not modified.
func Sanitize(frame []byte) string {
	out := make([]byte, len(frame))
	for i, c := range frame {
		switch {
		case c == '\n', c == '\t', c == '\r':
			out[i] = c
		case c < 0x20, c > 0x7E:
			out[i] = Placeholder
		default:
			out[i] = c
		}
	}
	return string(out)
}

// Framer extracts one reply from a receive buffer.
type Framer func(buf []byte) ([]byte, error)

// FrameBalanced is a stricter alternative to Frame for peers whose
// replies nest objects. It ends the reply where the outermost object
// closes, tracking '{', '[' and string literals. Buffers that do not
// start with '{' fall back to the NUL rule of Frame.
func FrameBalanced(buf []byte) ([]byte, error) {
	if len(buf) == 0 || buf[0] != '{' {
		for i, b := range buf {
			if b == 0 && i > 0 {
				return buf[:i], nil
			}
		}
		return nil, ErrNoTerminator
	}

	depth := 0
	inString := false
	escaped := false
	for i, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return buf[:i+1], nil
			}
		case 0:
			return buf[:i], nil
		}
	}
	return nil, ErrNoTerminator
}
