package codec

import "errors"

// ErrMalformed is returned when a buffer is shorter than its header or a
// variable-length field overruns the buffer. Per spec.md §7 this is
// absorbed by the caller (dropped silently), never surfaced as a crash.
var ErrMalformed = errors.New("codec: malformed message")

// ErrUnknownType is returned when msg_type does not match any known
// message. Per spec.md §7 the caller drops the message silently.
var ErrUnknownType = errors.New("codec: unknown message type")
