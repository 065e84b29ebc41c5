package video

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// maxAccessUnit bounds a buffered access unit; a stream that never sets the
// marker bit would otherwise grow it without limit.
const maxAccessUnit = 4 << 20

// assembler turns H264 RTP packets into Annex B access units.
// A sequence gap discards the partial unit, since the decoder can not use it.
type assembler struct {
	depacketizer codecs.H264Packet

	buf     []byte
	lastSeq uint16
	started bool

	gaps uint64
}

// push adds one packet and returns a complete access unit when the packet
// carries the marker bit.
func (a *assembler) push(pkt *rtp.Packet) ([]byte, error) {
	if a.started && pkt.SequenceNumber != a.lastSeq+1 {
		a.buf = a.buf[:0]
		a.gaps++
	}
	a.lastSeq, a.started = pkt.SequenceNumber, true

	nal, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		a.buf = a.buf[:0]
		return nil, err
	}
	a.buf = append(a.buf, nal...)

	if len(a.buf) > maxAccessUnit {
		a.buf = a.buf[:0]
		return nil, nil
	}
	if !pkt.Marker || len(a.buf) == 0 {
		return nil, nil
	}

	au := make([]byte, len(a.buf))
	copy(au, a.buf)
	a.buf = a.buf[:0]
	return au, nil
}
