package wire

import "encoding/binary"

// SLTag discriminates the payload carried by a Search Layer frame. SL runs
// its own small UDP protocol, separate from CDE's routing frames, for the
// one thing CDE's lookup/publish machinery deliberately leaves undone:
// actually moving a posting list between the initiator and the node CDE
// resolved as responsible.
type SLTag byte

const (
	StorePosting SLTag = iota + 1
	GetPostingsReq
	GetPostingsResp
)

func (t SLTag) valid() bool {
	return t >= StorePosting && t <= GetPostingsResp
}

// SLFrame is one datagram on the search port.
type SLFrame struct {
	Tag             SLTag
	TxnSeq          uint32
	StorePosting    *StorePostingPayload
	GetPostingsReq  *GetPostingsReqPayload
	GetPostingsResp *GetPostingsRespPayload
}

// StorePostingPayload asks the receiver to add docID to term's posting
// list. Fire-and-forget: the initiator already knows from CDE that the
// receiver is responsible for term, so no ack is required for Publish to
// be considered complete locally.
type StorePostingPayload struct {
	Term  string
	DocID string
}

func (p StorePostingPayload) size() int {
	return sizeOfString(p.Term) + sizeOfString(p.DocID)
}

func (p StorePostingPayload) encode(buf []byte) []byte {
	buf = writeUint16String(buf, p.Term)
	return writeUint16String(buf, p.DocID)
}

func decodeStorePostingPayload(buf []byte, off int) (StorePostingPayload, int, error) {
	term, off, err := readUint16String(buf, off)
	if err != nil {
		return StorePostingPayload{}, off, err
	}
	docID, off, err := readUint16String(buf, off)
	if err != nil {
		return StorePostingPayload{}, off, err
	}
	return StorePostingPayload{Term: term, DocID: docID}, off, nil
}

// GetPostingsReqPayload asks the receiver for its posting list for term.
type GetPostingsReqPayload struct {
	ReplyTo string // dotted-decimal IPv4 of the requester, for the response
	Term    string
}

func (p GetPostingsReqPayload) size() int {
	return ipv4Len + sizeOfString(p.Term)
}

func (p GetPostingsReqPayload) encode(buf []byte) []byte {
	buf = writeIP(buf, p.ReplyTo)
	return writeUint16String(buf, p.Term)
}

func decodeGetPostingsReqPayload(buf []byte, off int) (GetPostingsReqPayload, int, error) {
	replyTo, off, err := readIP(buf, off)
	if err != nil {
		return GetPostingsReqPayload{}, off, err
	}
	term, off, err := readUint16String(buf, off)
	if err != nil {
		return GetPostingsReqPayload{}, off, err
	}
	return GetPostingsReqPayload{ReplyTo: replyTo, Term: term}, off, nil
}

// GetPostingsRespPayload carries the responding node's posting list.
type GetPostingsRespPayload struct {
	Term   string
	DocIDs []string
}

func (p GetPostingsRespPayload) size() int {
	n := sizeOfString(p.Term) + 2
	for _, d := range p.DocIDs {
		n += sizeOfString(d)
	}
	return n
}

func (p GetPostingsRespPayload) encode(buf []byte) []byte {
	buf = writeUint16String(buf, p.Term)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.DocIDs)))
	for _, d := range p.DocIDs {
		buf = writeUint16String(buf, d)
	}
	return buf
}

func decodeGetPostingsRespPayload(buf []byte, off int) (GetPostingsRespPayload, int, error) {
	term, off, err := readUint16String(buf, off)
	if err != nil {
		return GetPostingsRespPayload{}, off, err
	}
	if off+2 > len(buf) {
		return GetPostingsRespPayload{}, off, decodeErrorf("truncated posting count at offset %d", off)
	}
	n := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	docIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var d string
		var err error
		d, off, err = readUint16String(buf, off)
		if err != nil {
			return GetPostingsRespPayload{}, off, err
		}
		docIDs = append(docIDs, d)
	}
	return GetPostingsRespPayload{Term: term, DocIDs: docIDs}, off, nil
}

// slHeaderSize is tag(1) + txnSeq(4).
const slHeaderSize = 1 + 4

// Size returns the exact encoded length of the frame.
func (f SLFrame) Size() int {
	n := slHeaderSize
	switch f.Tag {
	case StorePosting:
		n += f.StorePosting.size()
	case GetPostingsReq:
		n += f.GetPostingsReq.size()
	case GetPostingsResp:
		n += f.GetPostingsResp.size()
	}
	return n
}

// Encode serializes the frame to its bit-exact wire form.
func (f SLFrame) Encode() []byte {
	buf := make([]byte, 0, f.Size())
	buf = append(buf, byte(f.Tag))
	buf = binary.BigEndian.AppendUint32(buf, f.TxnSeq)
	switch f.Tag {
	case StorePosting:
		buf = f.StorePosting.encode(buf)
	case GetPostingsReq:
		buf = f.GetPostingsReq.encode(buf)
	case GetPostingsResp:
		buf = f.GetPostingsResp.encode(buf)
	}
	return buf
}

// DecodeSLFrame parses a search-port datagram.
func DecodeSLFrame(buf []byte) (SLFrame, error) {
	if len(buf) < slHeaderSize {
		return SLFrame{}, decodeErrorf("frame too short for SL header: %d bytes", len(buf))
	}
	tag := SLTag(buf[0])
	if !tag.valid() {
		return SLFrame{}, decodeErrorf("unknown SL tag %d", buf[0])
	}
	txnSeq := binary.BigEndian.Uint32(buf[1:5])
	off := 5

	f := SLFrame{Tag: tag, TxnSeq: txnSeq}
	var err error
	switch tag {
	case StorePosting:
		var p StorePostingPayload
		p, off, err = decodeStorePostingPayload(buf, off)
		if err != nil {
			return SLFrame{}, err
		}
		f.StorePosting = &p
	case GetPostingsReq:
		var p GetPostingsReqPayload
		p, off, err = decodeGetPostingsReqPayload(buf, off)
		if err != nil {
			return SLFrame{}, err
		}
		f.GetPostingsReq = &p
	case GetPostingsResp:
		var p GetPostingsRespPayload
		p, off, err = decodeGetPostingsRespPayload(buf, off)
		if err != nil {
			return SLFrame{}, err
		}
		f.GetPostingsResp = &p
	}
	if off != len(buf) {
		return SLFrame{}, decodeErrorf("trailing bytes after payload: got %d, consumed %d", len(buf), off)
	}
	return f, nil
}
