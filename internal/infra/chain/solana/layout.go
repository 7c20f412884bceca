package solana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/vietddude/todochain/internal/core/domain"
)

// Todo account layout:
//
//	[8 discriminator][32 owner][8 id][1 completed][1 priority]
//	[8 created_at][8 updated_at][4+n title][4+n description]
//
// Integers are little-endian, timestamps are unix seconds.
const (
	discriminatorLen = 8
	ownerOffset      = discriminatorLen
	idOffset         = ownerOffset + 32
	completedOffset  = idOffset + 8
	priorityOffset   = completedOffset + 1
	createdOffset    = priorityOffset + 1
	updatedOffset    = createdOffset + 8
	titleOffset      = updatedOffset + 8
)

// Instruction tags of the to-do program.
const (
	ixCreate byte = iota
	ixUpdate
	ixDelete
)

var errShortAccount = errors.New("account data too short")

func decodeTodo(data []byte) (domain.Todo, error) {
	if len(data) < titleOffset+4 {
		return domain.Todo{}, errShortAccount
	}

	title, next, err := readString(data, titleOffset)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("title: %w", err)
	}
	desc, _, err := readString(data, next)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("description: %w", err)
	}

	return domain.Todo{
		ID:          binary.LittleEndian.Uint64(data[idOffset:]),
		Title:       title,
		Description: desc,
		Completed:   data[completedOffset] != 0,
		Priority:    domain.Priority(data[priorityOffset]),
		Owner:       base58.Encode(data[ownerOffset:idOffset]),
		CreatedAt:   unixSeconds(data[createdOffset:]),
		UpdatedAt:   unixSeconds(data[updatedOffset:]),
	}, nil
}

func readString(data []byte, off int) (string, int, error) {
	if len(data) < off+4 {
		return "", 0, errShortAccount
	}
	n := int(binary.LittleEndian.Uint32(data[off:]))
	start := off + 4
	if len(data) < start+n {
		return "", 0, errShortAccount
	}
	return string(data[start : start+n]), start + n, nil
}

func unixSeconds(b []byte) time.Time {
	secs := int64(binary.LittleEndian.Uint64(b))
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// writer appends borsh-encoded values.
type writer struct {
	buf []byte
}

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *writer) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *writer) u64(v uint64)   { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) str(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// option writes borsh Option<T>: a presence byte followed by the value.
func (w *writer) option(present bool, write func()) {
	w.boolean(present)
	if present {
		write()
	}
}

func idBytes(id uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, id)
}
