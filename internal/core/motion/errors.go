package motion

import "errors"

// ErrDeviceRead indicates the raw stream was closed, unreadable or returned a short record.
var ErrDeviceRead = errors.New("device read failed")

// ErrMalformedPacket indicates a full packet was read but failed the PS/2 sync check.
// It matches ErrDeviceRead as well, so callers that only care about read failures
// can treat both the same way.
var ErrMalformedPacket = malformedPacketError{}

type malformedPacketError struct{}

func (malformedPacketError) Error() string { return "malformed motion packet" }

func (malformedPacketError) Is(target error) bool { return target == ErrDeviceRead }
