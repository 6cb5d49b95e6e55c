package wire

import "encoding/binary"

// LSRTag discriminates the payload carried by a link-state routing frame.
type LSRTag byte

const (
	LSRPingReq LSRTag = iota + 1
	LSRPingRsp
	NDReq
	NDRsp
	LSP
)

func (t LSRTag) valid() bool {
	return t >= LSRPingReq && t <= LSP
}

// LSRFrame is one datagram on the routing port. Every frame carries a tag, a
// transaction/sequence number, a hop-limiting TTL, and the originator's main
// IPv4 address, followed by a tag-discriminated payload.
type LSRFrame struct {
	Tag         LSRTag
	TxnSeq      uint32
	TTL         uint8
	Originator  string // dotted-decimal IPv4
	Ping        *PingPayload // set when Tag is LSRPingReq/LSRPingRsp/NDReq/NDRsp
	LSP         *LSPPayload  // set when Tag is LSP
}

// PingPayload is the shared shape of PING_REQ, PING_RSP, ND_REQ, and ND_RSP.
type PingPayload struct {
	DestIP  string
	Message string
}

func (p PingPayload) size() int {
	return ipv4Len + sizeOfString(p.Message)
}

func (p PingPayload) encode(buf []byte) []byte {
	buf = writeIP(buf, p.DestIP)
	return writeUint16String(buf, p.Message)
}

func decodePingPayload(buf []byte, off int) (PingPayload, int, error) {
	destIP, off, err := readIP(buf, off)
	if err != nil {
		return PingPayload{}, off, err
	}
	msg, off, err := readUint16String(buf, off)
	if err != nil {
		return PingPayload{}, off, err
	}
	return PingPayload{DestIP: destIP, Message: msg}, off, nil
}

// LSPPayload is the body of an LSP: the originator's sequence number and
// advertised neighbor list, plus the legacy dest/message fields inherited
// from the shared ping payload shape (unused by flooding logic but part of
// the bit-exact wire grammar).
type LSPPayload struct {
	Seq         uint64
	Neighbors   []string // dotted-decimal IPv4 addresses
	DestIP      string
	Message     string
}

func (p LSPPayload) size() int {
	return 8 + 2 + len(p.Neighbors)*ipv4Len + ipv4Len + sizeOfString(p.Message)
}

func (p LSPPayload) encode(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, p.Seq)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Neighbors)))
	for _, n := range p.Neighbors {
		buf = writeIP(buf, n)
	}
	buf = writeIP(buf, p.DestIP)
	return writeUint16String(buf, p.Message)
}

func decodeLSPPayload(buf []byte, off int) (LSPPayload, int, error) {
	if off+8+2 > len(buf) {
		return LSPPayload{}, off, decodeErrorf("truncated LSP header at offset %d", off)
	}
	seq := binary.BigEndian.Uint64(buf[off:])
	off += 8
	n := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	neighbors := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var ip string
		var err error
		ip, off, err = readIP(buf, off)
		if err != nil {
			return LSPPayload{}, off, err
		}
		neighbors = append(neighbors, ip)
	}
	destIP, off, err := readIP(buf, off)
	if err != nil {
		return LSPPayload{}, off, err
	}
	msg, off, err := readUint16String(buf, off)
	if err != nil {
		return LSPPayload{}, off, err
	}
	return LSPPayload{Seq: seq, Neighbors: neighbors, DestIP: destIP, Message: msg}, off, nil
}

// lsrHeaderSize is tag(1) + txn/seq(4) + ttl(1) + originator(4).
const lsrHeaderSize = 1 + 4 + 1 + ipv4Len

// Size returns the exact encoded length of the frame.
func (f LSRFrame) Size() int {
	n := lsrHeaderSize
	switch f.Tag {
	case LSRPingReq, LSRPingRsp, NDReq, NDRsp:
		n += f.Ping.size()
	case LSP:
		n += f.LSP.size()
	}
	return n
}

// Encode serializes the frame to its exact bit-exact wire form.
func (f LSRFrame) Encode() []byte {
	buf := make([]byte, 0, f.Size())
	buf = append(buf, byte(f.Tag))
	buf = binary.BigEndian.AppendUint32(buf, f.TxnSeq)
	buf = append(buf, f.TTL)
	buf = writeIP(buf, f.Originator)
	switch f.Tag {
	case LSRPingReq, LSRPingRsp, NDReq, NDRsp:
		buf = f.Ping.encode(buf)
	case LSP:
		buf = f.LSP.encode(buf)
	}
	return buf
}

// DecodeLSRFrame parses a routing-port datagram. It fails with a
// *DecodeError on an out-of-range tag or a length mismatch; no frame state
// is ever partially applied by the caller since this returns a fully formed
// value or an error.
func DecodeLSRFrame(buf []byte) (LSRFrame, error) {
	if len(buf) < lsrHeaderSize {
		return LSRFrame{}, decodeErrorf("frame too short for LSR header: %d bytes", len(buf))
	}
	tag := LSRTag(buf[0])
	if !tag.valid() {
		return LSRFrame{}, decodeErrorf("unknown LSR tag %d", buf[0])
	}
	txnSeq := binary.BigEndian.Uint32(buf[1:5])
	ttl := buf[5]
	originator, off, err := readIP(buf, 6)
	if err != nil {
		return LSRFrame{}, err
	}

	f := LSRFrame{Tag: tag, TxnSeq: txnSeq, TTL: ttl, Originator: originator}
	switch tag {
	case LSRPingReq, LSRPingRsp, NDReq, NDRsp:
		p, off2, err := decodePingPayload(buf, off)
		if err != nil {
			return LSRFrame{}, err
		}
		f.Ping = &p
		off = off2
	case LSP:
		p, off2, err := decodeLSPPayload(buf, off)
		if err != nil {
			return LSRFrame{}, err
		}
		f.LSP = &p
		off = off2
	}
	if off != len(buf) {
		return LSRFrame{}, decodeErrorf("trailing bytes after payload: got %d, consumed %d", len(buf), off)
	}
	return f, nil
}
