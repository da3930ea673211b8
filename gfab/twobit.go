package gfab

import (
	"encoding/binary"
	"fmt"
)

// base2bit maps the canonical DNA alphabet to its 2-bit code. Any other
// byte (N, IUPAC ambiguity codes, lowercase, '*', ...) is stored as an
// escape instead of being encoded here.
var base2bit = [256]int8{}

// bit2base is the inverse of base2bit for the four canonical codes.
var bit2base = [4]byte{'A', 'C', 'G', 'T'}

func init() {
	for i := range base2bit {
		base2bit[i] = -1
	}
	base2bit['A'] = 0
	base2bit['C'] = 1
	base2bit['G'] = 2
	base2bit['T'] = 3
}

// twobitEscape records one position in the sequence whose original byte
// could not be represented by the 2-bit canonical alphabet.
type twobitEscape struct {
	Pos  uint32
	Byte byte
}

// twobitEncode packs seq into a blob of length, an escape table, and a
// 2-bit-per-base payload: one code per base, with an escape side table
// recording the verbatim byte for anything outside {A,C,G,T}.
//
// decode(encode(s)) == s holds for every byte string s, since every byte
// that cannot be represented in 2 bits is recorded verbatim as an escape.
func twobitEncode(seq []byte) []byte {
	n := uint32(len(seq))
	var escapes []twobitEscape
	for i, b := range seq {
		if base2bit[b] < 0 {
			escapes = append(escapes, twobitEscape{Pos: uint32(i), Byte: b})
		}
	}

	packedLen := (len(seq) + 3) / 4
	blob := make([]byte, 8+len(escapes)*5+packedLen)
	binary.LittleEndian.PutUint32(blob[0:4], n)
	binary.LittleEndian.PutUint32(blob[4:8], uint32(len(escapes)))
	off := 8
	for _, e := range escapes {
		binary.LittleEndian.PutUint32(blob[off:off+4], e.Pos)
		blob[off+4] = e.Byte
		off += 5
	}

	payload := blob[off:]
	for i, b := range seq {
		code := base2bit[b]
		if code < 0 {
			code = 0
		}
		payload[i/4] |= byte(code) << uint((i%4)*2)
	}
	return blob
}

// twobitDecode reverses twobitEncode. It panics if blob is shorter than its
// own declared header, which indicates caller corruption rather than a
// recoverable input error.
func twobitDecode(blob []byte) []byte {
	if len(blob) < 8 {
		panic(fmt.Sprintf("twobit: blob too short: %d bytes", len(blob)))
	}
	n := binary.LittleEndian.Uint32(blob[0:4])
	nEscapes := binary.LittleEndian.Uint32(blob[4:8])
	off := 8
	escapes := make(map[uint32]byte, nEscapes)
	for i := uint32(0); i < nEscapes; i++ {
		if off+5 > len(blob) {
			panic("twobit: truncated escape table")
		}
		pos := binary.LittleEndian.Uint32(blob[off : off+4])
		escapes[pos] = blob[off+4]
		off += 5
	}
	payload := blob[off:]
	out := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		if b, ok := escapes[i]; ok {
			out[i] = b
			continue
		}
		code := (payload[i/4] >> uint((i%4)*2)) & 0x3
		out[i] = bit2base[code]
	}
	return out
}

// twobitLength reads the declared sequence length out of blob without
// decoding the payload.
func twobitLength(blob []byte) int {
	if len(blob) < 4 {
		panic(fmt.Sprintf("twobit: blob too short: %d bytes", len(blob)))
	}
	return int(binary.LittleEndian.Uint32(blob[0:4]))
}
