package polkadot

import (
	"encoding/binary"
	"math/bits"
)

// scaleWriter appends SCALE-encoded call arguments.
type scaleWriter struct {
	buf []byte
}

func (w *scaleWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *scaleWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *scaleWriter) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// compact writes an unsigned integer in SCALE compact form.
func (w *scaleWriter) compact(v uint64) {
	switch {
	case v < 1<<6:
		w.u8(uint8(v << 2))
	case v < 1<<14:
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v<<2|0b01))
	case v < 1<<30:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v<<2|0b10))
	default:
		n := (bits.Len64(v) + 7) / 8
		w.u8(uint8(n-4)<<2 | 0b11)
		for i := 0; i < n; i++ {
			w.u8(uint8(v >> (8 * i)))
		}
	}
}

// bytes writes a length-prefixed byte string (Vec<u8>).
func (w *scaleWriter) bytes(b []byte) {
	w.compact(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *scaleWriter) option(present bool, write func()) {
	w.boolean(present)
	if present {
		write()
	}
}
