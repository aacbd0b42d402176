package fabric

import "fmt"

// ChannelError reports a failure in stream lifecycle or message delivery,
// mirroring the Op/Err shape the RTMP layer uses for protocol errors.
type ChannelError struct {
	Op  string
	Key string
	Err error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("channel error: %s: %s", e.Op, e.Key)
	}
	return fmt.Sprintf("channel error: %s: %s: %v", e.Op, e.Key, e.Err)
}
func (e *ChannelError) Unwrap() error { return e.Err }

func newChannelError(op, key string, cause error) error {
	return &ChannelError{Op: op, Key: key, Err: cause}
}

// ErrAlreadyPublishing is returned by Manager.Create when a publisher is
// already attached to the stream key: duplicate Create is rejected rather
// than displacing the existing publisher.
var ErrAlreadyPublishing = fmt.Errorf("channel: stream already has an active publisher")

// ErrNoSuchChannel is returned when an operation names a stream key with no
// running Channel.
var ErrNoSuchChannel = fmt.Errorf("channel: no such stream")

// ErrChannelClosed is returned when a message is sent to a Channel whose
// actor loop has already exited.
var ErrChannelClosed = fmt.Errorf("channel: closed")
