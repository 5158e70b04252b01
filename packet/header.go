/*
 * MIT License
 *
 * Copyright (c) 2026 xmoon contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package packet implements the length-prefixed wire framing used by the
// reactor's read and write handlers: a fixed-size header carrying the total
// frame length, followed by an application body.
package packet

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderLen is the fixed size, in bytes, of every frame header.
	HeaderLen = 16

	// MaxPacketLen is the largest total frame size (header included) the
	// reactor will accept. Frames outside [HeaderLen, MaxPacketLen] are
	// discarded by the read handler without closing the connection.
	MaxPacketLen = 8192
)

var (
	// ErrHeaderTooShort is returned by DecodeHeader when fewer than
	// HeaderLen bytes are available.
	ErrHeaderTooShort = errors.New("packet: header buffer shorter than HeaderLen")

	// ErrTotalLenOutOfRange names the condition Header.Valid reports as
	// false: TotalLen violating HeaderLen <= TotalLen <= MaxPacketLen. No
	// function in this package returns it; the read handler discards such
	// frames and resyncs.
	ErrTotalLenOutOfRange = errors.New("packet: total length out of range")
)

// Header is the on-wire frame header. TotalLen is the length of the whole
// frame, header included, matching the original protocol's "total_len
// includes itself" convention.
type Header struct {
	TotalLen uint16
	MsgCode  uint16
	CRC32    uint32
	Reserved [8]byte
}

// BodyLen returns the number of body bytes that follow the header for a
// frame whose TotalLen has already been validated.
func (h Header) BodyLen() int {
	return int(h.TotalLen) - HeaderLen
}

// Valid reports whether TotalLen observes the header_len <= total_len <=
// MAX_PACKET_LEN invariant.
func (h Header) Valid() bool {
	return int(h.TotalLen) >= HeaderLen && int(h.TotalLen) <= MaxPacketLen
}

// Encode serializes h into a freshly allocated HeaderLen-byte slice, network
// byte order, matching the original C structure's field order.
func Encode(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], h.TotalLen)
	binary.BigEndian.PutUint16(buf[2:4], h.MsgCode)
	binary.BigEndian.PutUint32(buf[4:8], h.CRC32)
	copy(buf[8:16], h.Reserved[:])
	return buf
}

// DecodeHeader parses the first HeaderLen bytes of buf into a Header. It does
// not itself enforce Valid(); callers apply that check so that out-of-range
// frames can be discarded without being mistaken for a short read.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderLen {
		return h, ErrHeaderTooShort
	}
	h.TotalLen = binary.BigEndian.Uint16(buf[0:2])
	h.MsgCode = binary.BigEndian.Uint16(buf[2:4])
	h.CRC32 = binary.BigEndian.Uint32(buf[4:8])
	copy(h.Reserved[:], buf[8:16])
	return h, nil
}
