package fastcgi

import "encoding/binary"

// appendLength appends n's short (1-byte, top bit clear) or long (4-byte,
// top bit set) encoding name-value pair length fields.
func appendLength(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n)|0x80000000)
	return append(dst, b[:]...)
}

// appendNameValuePair appends one PARAMS entry.
func appendNameValuePair(dst []byte, name, value string) []byte {
	dst = appendLength(dst, len(name))
	dst = appendLength(dst, len(value))
	dst = append(dst, name...)
	dst = append(dst, value...)
	return dst
}

// decodeLength reads one short/long length field starting at b[0], returning
// the value and the number of bytes it occupied.
func decodeLength(b []byte) (n int, size int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1, true
	}
	if len(b) < 4 {
		return 0, 0, false
	}
	v := binary.BigEndian.Uint32(b[0:4]) &^ 0x80000000
	return int(v), 4, true
}

// decodeNameValuePairs parses a complete, fully-buffered PARAMS stream into
// a name-to-value map. CGI environment variables have no duplicate-key
// semantics worth preserving order for; a name that repeats keeps its last
// value.
func decodeNameValuePairs(b []byte) (map[string]string, error) {
	out := make(map[string]string)
	for len(b) > 0 {
		nameLen, nsz, ok := decodeLength(b)
		if !ok {
			return nil, errShortParams
		}
		b = b[nsz:]
		valueLen, vsz, ok := decodeLength(b)
		if !ok {
			return nil, errShortParams
		}
		b = b[vsz:]
		if len(b) < nameLen+valueLen {
			return nil, errShortParams
		}
		name := string(b[:nameLen])
		value := string(b[nameLen : nameLen+valueLen])
		out[name] = value
		b = b[nameLen+valueLen:]
	}
	return out, nil
}
