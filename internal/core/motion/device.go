package motion

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DefaultDevicePath is the aggregated mouse stream exposed by the Linux input subsystem.
const DefaultDevicePath = "/dev/input/mice"

// packetSize is the length of one PS/2 motion packet: flags, dx, dy.
const packetSize = 3

// syncBit is always set in the flags byte of a well-formed packet.
const syncBit = 0x08

// DeviceSource decodes PS/2 motion packets from a raw byte stream.
type DeviceSource struct {
	r   io.Reader
	buf [packetSize]byte
}

// NewDeviceSource wraps r. The caller keeps ownership of r and closes it.
func NewDeviceSource(r io.Reader) *DeviceSource {
	return &DeviceSource{r: r}
}

// OpenDevice opens the device file read-only.
func OpenDevice(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}
	return f, nil
}

// NextSample reads exactly one packet. The context is only checked before the
// read starts; unblocking a pending read is done by closing the underlying file.
func (d *DeviceSource) NextSample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrDeviceRead, err)
	}
	if d.buf[0]&syncBit == 0 {
		return Sample{}, fmt.Errorf("%w: flags byte 0x%02x", ErrMalformedPacket, d.buf[0])
	}
	return Sample{
		DX: int8(d.buf[1]),
		DY: int8(d.buf[2]),
	}, nil
}
