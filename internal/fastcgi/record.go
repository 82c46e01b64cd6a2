// Package fastcgi implements the FastCGI wire protocol: binary record
// framing, short/long name-value pair encoding, and request-id
// multiplexing over one connection, registered as a connection.Factory
// under protocol name "fcgi" so it produces the same Channel semantics as
// internal/http1 over a completely different wire.
package fastcgi

import (
 "encoding/binary"
)

const (
 version1 = 1

 headerLen = 8

 // maxContentLength is the record content-length field's 16-bit ceiling;
 // a larger payload must split across multiple records.
 maxContentLength = 0xFFFF
)

// Record types fixed list.
const (
 typeBeginRequest = uint8(1)
 typeAbortRequest = uint8(2)
 typeEndRequest = uint8(3)
 typeParams = uint8(4)
 typeStdin = uint8(5)
 typeStdout = uint8(6)
 typeStderr = uint8(7)
 typeData = uint8(8)
 typeUnknownType = uint8(11)
)

// Roles a BEGIN_REQUEST record may request; only Responder is served.
const (
 RoleResponder uint16 = 1
 RoleAuthorizer uint16 = 2
 RoleFilter uint16 = 3
)

// Application-level protocol status codes for END_REQUEST, mirroring the
// FastCGI specification's fixed set.
const (
 StatusRequestComplete uint8 = 0
 StatusCantMultiplex uint8 = 1
 StatusOverloaded uint8 = 2
 StatusUnknownRole uint8 = 3
)

const flagKeepConn = 1

// header is the fixed 8-byte record prefix.
type header struct {
	version       uint8
	reqType       uint8
	requestID     uint16
	contentLength uint16
	paddingLength uint8
	reserved      uint8
}

func decodeHeader(b []byte) header {
 return header{
 version: b[0],
 reqType: b[1],
 requestID: binary.BigEndian.Uint16(b[2:4]),
 contentLength: binary.BigEndian.Uint16(b[4:6]),
 paddingLength: b[6],
 reserved: b[7],
 }
}

func appendHeader(dst []byte, reqType uint8, requestID uint16, contentLength int, padding uint8) []byte {
 var h [headerLen]byte
 h[0] = version1
 h[1] = reqType
 binary.BigEndian.PutUint16(h[2:4], requestID)
 binary.BigEndian.PutUint16(h[4:6], uint16(contentLength))
 h[6] = padding
 h[7] = 0
 return append(dst, h[:]...)
}

// paddingFor rounds contentLength up to the next multiple of 8, per the
// FastCGI specification's alignment recommendation (not required for
// correctness, only for the reference implementation's performance; kept
// here since the pack's wire codecs all pad to word boundaries).
func paddingFor(contentLength int) uint8 {
 rem := contentLength % 8
 if rem == 0 {
 return 0
 }
 return uint8(8 - rem)
}

// appendRecord appends one complete record (header + content + zero padding)
// for content no larger than maxContentLength.
func appendRecord(dst []byte, reqType uint8, requestID uint16, content []byte) []byte {
 pad := paddingFor(len(content))
 dst = appendHeader(dst, reqType, requestID, len(content), pad)
 dst = append(dst, content...)
 for i := uint8(0); i < pad; i++ {
 dst = append(dst, 0)
 }
 return dst
}

// beginRequestBody decodes a BEGIN_REQUEST record's 8-byte content.
type beginRequestBody struct {
 role uint16
 flags uint8
}

func decodeBeginRequestBody(b []byte) beginRequestBody {
 return beginRequestBody{
 role: binary.BigEndian.Uint16(b[0:2]),
 flags: b[2],
 }
}

func (b beginRequestBody) keepConn() bool { return b.flags&flagKeepConn != 0 }

// appendEndRequest appends a complete END_REQUEST record for requestID.
func appendEndRequest(dst []byte, requestID uint16, appStatus uint32, protocolStatus uint8) []byte {
 var content [8]byte
 binary.BigEndian.PutUint32(content[0:4], appStatus)
 content[4] = protocolStatus
 return appendRecord(dst, typeEndRequest, requestID, content[:])
}
