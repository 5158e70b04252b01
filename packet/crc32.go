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

package packet

// crc32Table is the bit-reflected CRC-32 lookup table for polynomial
// 0x04c11db7, built once at init time the same way the original codec built
// it at construction time.
var crc32Table [256]uint32

func init() {
	const poly = uint32(0x04c11db7)
	for i := 0; i < 256; i++ {
		v := reflect32(uint32(i), 8) << 24
		for j := 0; j < 8; j++ {
			if v&(1<<31) != 0 {
				v = (v << 1) ^ poly
			} else {
				v = v << 1
			}
		}
		crc32Table[i] = reflect32(v, 32)
	}
}

func reflect32(ref uint32, bits int) uint32 {
	var value uint32
	for i := 1; i < bits+1 && ref != 0; i++ {
		if ref&1 != 0 {
			value |= 1 << uint(bits-i)
		}
		ref >>= 1
	}
	return value
}

// Checksum is an application-level helper, not called by the core framing
// path, offered for applications that want to fill Header.CRC32 themselves.
func Checksum(data []byte) uint32 {
	crc := uint32(0xffffffff)
	for _, b := range data {
		crc = (crc >> 8) ^ crc32Table[(crc&0xff)^uint32(b)]
	}
	return crc ^ 0xffffffff
}
