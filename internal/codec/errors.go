// Package codec holds the errors shared by the AVC, HEVC and AAC
// converters (internal/codec/avc, internal/codec/hevc, internal/codec/aac).
package codec

import "errors"

// ErrNotInitialized is returned by a converter's write path (AVCC/HVCC ->
// Annex-B, raw -> ADTS) while it is still Initializing, i.e. before any
// sequence header has been observed.
var ErrNotInitialized = errors.New("codec: converter not initialized")

// ErrNotEnoughData is returned when the input is truncated before the next
// syntactic boundary (a NAL length prefix, an ADTS frame header, ...). The
// caller must drop the producing packet but must not tear down the channel.
var ErrNotEnoughData = errors.New("codec: not enough data")
