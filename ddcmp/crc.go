// Package ddcmp implements the Digital Data Communications Message Protocol
// point-to-point line discipline used by DECnet Phase IV over serial and
// TCP-framed links.
package ddcmp

// crc16Nibble is the CRC-16 (polynomial x^16+x^15+x^2+1, 0xA001) nibble
// lookup table indexed by the low 4 bits of (data ^ crc).
var crc16Nibble = [16]uint16{
	0x0000, 0xCC01, 0xD801, 0x1400,
	0xF001, 0x3C00, 0x2800, 0xE401,
	0xA001, 0x6C00, 0x7800, 0xB401,
	0x5000, 0x9C01, 0x8801, 0x4400,
}

// UpdateCRC16 folds one byte into a running CRC-16 accumulator, processing
// the byte nibble by nibble least-significant-nibble-first.
func UpdateCRC16(crc uint16, b byte) uint16 {
	crc = (crc >> 4) ^ crc16Nibble[(uint16(b)^crc)&0xF]
	crc = (crc >> 4) ^ crc16Nibble[(uint16(b>>4)^crc)&0xF]
	return crc
}

// CRC16 computes the DDCMP CRC-16 of data starting from a zero accumulator.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = UpdateCRC16(crc, b)
	}
	return crc
}

// AppendCRC16 appends the little-endian CRC-16 of data to dst.
func AppendCRC16(dst, data []byte) []byte {
	crc := CRC16(data)
	return append(dst, byte(crc), byte(crc>>8))
}

// VerifyCRC16 reports whether the CRC-16 of buf, including its own trailing
// 2-byte CRC field, folds to zero.
func VerifyCRC16(buf []byte) bool {
	return CRC16(buf) == 0
}
