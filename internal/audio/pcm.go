// Package audio holds small PCM helpers shared by the codec engines and the
// ingest producers.
package audio

import "encoding/binary"

// BytesToInt16 converts s16le bytes to samples. A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	return AppendInt16(make([]int16, 0, len(data)/2), data)
}

// AppendInt16 decodes s16le bytes and appends the samples to dst.
func AppendInt16(dst []int16, data []byte) []int16 {
	for i := 0; i+1 < len(data); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	return dst
}

// Int16ToBytes converts samples to s16le bytes.
func Int16ToBytes(samples []int16) []byte {
	return Int16ToBytesInto(samples, make([]byte, len(samples)*2))
}

// Int16ToBytesInto writes s16le bytes into dst, avoiding allocation.
// dst must have capacity >= len(samples)*2. Returns the used portion.
func Int16ToBytesInto(samples []int16, dst []byte) []byte {
	dst = dst[:len(samples)*2]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst
}
