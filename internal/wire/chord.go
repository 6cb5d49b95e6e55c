package wire

import "encoding/binary"

// ChordTag discriminates the payload carried by a Chord DHT engine frame.
// Tag values are numbered independently from LSRTag and must stay stable for
// cross-implementation compatibility.
type ChordTag byte

const (
	ChordPingReq ChordTag = iota + 1
	ChordPingRsp
	JoinChord
	FindSuccessor
	JoinChordSuccess
	JoinChordFail
	Notify
	StabilizeReq
	StabilizeResp
	RingState
	LeaveSuccessor
	LeavePredecessor
	FindFinger
	FindFingerSuccess
	LookupPublish
	LookupPublishSuccess
)

func (t ChordTag) valid() bool {
	return t >= ChordPingReq && t <= LookupPublishSuccess
}

// ChordFrame is one datagram on the application port. Unlike LSRFrame, Chord
// frames carry no TTL or originator: the sender's identity comes from the
// UDP source address of the datagram (recovered via the address directory),
// since stabilize/notify/ping payloads are otherwise empty.
type ChordFrame struct {
	Tag    ChordTag
	TxnSeq uint32

	FindSuccessor        *FindSuccessorPayload
	JoinChordSuccess     *AddrPayload
	StabilizeResp        *AddrPayload
	RingState            *AddrPayload
	LeaveSuccessor       *AddrPayload
	LeavePredecessor     *AddrPayload
	FindFinger           *FindFingerPayload
	FindFingerSuccess    *FindFingerSuccessPayload
	LookupPublish        *LookupPublishPayload
	LookupPublishSuccess *LookupPublishSuccessPayload
}

// AddrPayload carries a single IPv4 address: used by JOIN_CHORD_SUCCESS,
// STABILIZE_RESP, RINGSTATE, LEAVE_SUCCESSOR, and LEAVE_PREDECESSOR. An empty
// IP encodes as the all-zero sentinel (e.g. STABILIZE_RESP with no known
// predecessor).
type AddrPayload struct {
	IP string
}

func (p AddrPayload) size() int { return ipv4Len }

func (p AddrPayload) encode(buf []byte) []byte { return writeIP(buf, p.IP) }

func decodeAddrPayload(buf []byte, off int) (AddrPayload, int, error) {
	ip, off, err := readIP(buf, off)
	if err != nil {
		return AddrPayload{}, off, err
	}
	return AddrPayload{IP: ip}, off, nil
}

// FindSuccessorPayload is the FIND_SUCCESSOR body: the address the final
// answer must be sent back to (recursive-reply routing), and the target
// ring identifier.
type FindSuccessorPayload struct {
	ReplyTo string
	Target  []byte
}

func (p FindSuccessorPayload) size() int { return ipv4Len + digestLen }

func (p FindSuccessorPayload) encode(buf []byte) []byte {
	buf = writeIP(buf, p.ReplyTo)
	return writeDigest(buf, p.Target)
}

func decodeFindSuccessorPayload(buf []byte, off int) (FindSuccessorPayload, int, error) {
	replyTo, off, err := readIP(buf, off)
	if err != nil {
		return FindSuccessorPayload{}, off, err
	}
	target, off, err := readDigest(buf, off)
	if err != nil {
		return FindSuccessorPayload{}, off, err
	}
	return FindSuccessorPayload{ReplyTo: replyTo, Target: target}, off, nil
}

// FindFingerPayload is the FIND_FINGER body.
type FindFingerPayload struct {
	ReplyTo string
	Target  []byte
	Index   uint16
}

func (p FindFingerPayload) size() int { return ipv4Len + digestLen + 2 }

func (p FindFingerPayload) encode(buf []byte) []byte {
	buf = writeIP(buf, p.ReplyTo)
	buf = writeDigest(buf, p.Target)
	return binary.BigEndian.AppendUint16(buf, p.Index)
}

func decodeFindFingerPayload(buf []byte, off int) (FindFingerPayload, int, error) {
	replyTo, off, err := readIP(buf, off)
	if err != nil {
		return FindFingerPayload{}, off, err
	}
	target, off, err := readDigest(buf, off)
	if err != nil {
		return FindFingerPayload{}, off, err
	}
	if off+2 > len(buf) {
		return FindFingerPayload{}, off, decodeErrorf("truncated finger index at offset %d", off)
	}
	index := binary.BigEndian.Uint16(buf[off:])
	off += 2
	return FindFingerPayload{ReplyTo: replyTo, Target: target, Index: index}, off, nil
}

// FindFingerSuccessPayload is the FIND_FINGER_SUCCESS body.
type FindFingerSuccessPayload struct {
	FingerIP string
	Index    uint16
}

func (p FindFingerSuccessPayload) size() int { return ipv4Len + 2 }

func (p FindFingerSuccessPayload) encode(buf []byte) []byte {
	buf = writeIP(buf, p.FingerIP)
	return binary.BigEndian.AppendUint16(buf, p.Index)
}

func decodeFindFingerSuccessPayload(buf []byte, off int) (FindFingerSuccessPayload, int, error) {
	ip, off, err := readIP(buf, off)
	if err != nil {
		return FindFingerSuccessPayload{}, off, err
	}
	if off+2 > len(buf) {
		return FindFingerSuccessPayload{}, off, decodeErrorf("truncated finger index at offset %d", off)
	}
	index := binary.BigEndian.Uint16(buf[off:])
	off += 2
	return FindFingerSuccessPayload{FingerIP: ip, Index: index}, off, nil
}

// LookupFlag selects the SL callback a LOOKUP_PUBLISH(_SUCCESS) reply is
// dispatched to.
type LookupFlag uint16

const (
	FlagPublish LookupFlag = iota
	FlagSearchInitial
	FlagSearchStep
)

// LookupPublishPayload is the LOOKUP_PUBLISH body.
type LookupPublishPayload struct {
	Flag      LookupFlag
	Initiator string
	Target    []byte
	Key       string
}

func (p LookupPublishPayload) size() int {
	return 2 + ipv4Len + digestLen + sizeOfString(p.Key)
}

func (p LookupPublishPayload) encode(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Flag))
	buf = writeIP(buf, p.Initiator)
	buf = writeDigest(buf, p.Target)
	return writeUint16String(buf, p.Key)
}

func decodeLookupPublishPayload(buf []byte, off int) (LookupPublishPayload, int, error) {
	if off+2 > len(buf) {
		return LookupPublishPayload{}, off, decodeErrorf("truncated lookup flag at offset %d", off)
	}
	flag := LookupFlag(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	initiator, off, err := readIP(buf, off)
	if err != nil {
		return LookupPublishPayload{}, off, err
	}
	target, off, err := readDigest(buf, off)
	if err != nil {
		return LookupPublishPayload{}, off, err
	}
	key, off, err := readUint16String(buf, off)
	if err != nil {
		return LookupPublishPayload{}, off, err
	}
	return LookupPublishPayload{Flag: flag, Initiator: initiator, Target: target, Key: key}, off, nil
}

// LookupPublishSuccessPayload is the LOOKUP_PUBLISH_SUCCESS body.
type LookupPublishSuccessPayload struct {
	Flag        LookupFlag
	Responsible string
	Key         string
}

func (p LookupPublishSuccessPayload) size() int {
	return 2 + ipv4Len + sizeOfString(p.Key)
}

func (p LookupPublishSuccessPayload) encode(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Flag))
	buf = writeIP(buf, p.Responsible)
	return writeUint16String(buf, p.Key)
}

func decodeLookupPublishSuccessPayload(buf []byte, off int) (LookupPublishSuccessPayload, int, error) {
	if off+2 > len(buf) {
		return LookupPublishSuccessPayload{}, off, decodeErrorf("truncated lookup flag at offset %d", off)
	}
	flag := LookupFlag(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	responsible, off, err := readIP(buf, off)
	if err != nil {
		return LookupPublishSuccessPayload{}, off, err
	}
	key, off, err := readUint16String(buf, off)
	if err != nil {
		return LookupPublishSuccessPayload{}, off, err
	}
	return LookupPublishSuccessPayload{Flag: flag, Responsible: responsible, Key: key}, off, nil
}

// chordHeaderSize is tag(1) + txn(4).
const chordHeaderSize = 1 + 4

// Size returns the exact encoded length of the frame.
func (f ChordFrame) Size() int {
	n := chordHeaderSize
	switch f.Tag {
	case FindSuccessor:
		n += f.FindSuccessor.size()
	case JoinChordSuccess:
		n += f.JoinChordSuccess.size()
	case StabilizeResp:
		n += f.StabilizeResp.size()
	case RingState:
		n += f.RingState.size()
	case LeaveSuccessor:
		n += f.LeaveSuccessor.size()
	case LeavePredecessor:
		n += f.LeavePredecessor.size()
	case FindFinger:
		n += f.FindFinger.size()
	case FindFingerSuccess:
		n += f.FindFingerSuccess.size()
	case LookupPublish:
		n += f.LookupPublish.size()
	case LookupPublishSuccess:
		n += f.LookupPublishSuccess.size()
	}
	return n
}

// Encode serializes the frame to its exact bit-exact wire form.
func (f ChordFrame) Encode() []byte {
	buf := make([]byte, 0, f.Size())
	buf = append(buf, byte(f.Tag))
	buf = binary.BigEndian.AppendUint32(buf, f.TxnSeq)
	switch f.Tag {
	case FindSuccessor:
		buf = f.FindSuccessor.encode(buf)
	case JoinChordSuccess:
		buf = f.JoinChordSuccess.encode(buf)
	case StabilizeResp:
		buf = f.StabilizeResp.encode(buf)
	case RingState:
		buf = f.RingState.encode(buf)
	case LeaveSuccessor:
		buf = f.LeaveSuccessor.encode(buf)
	case LeavePredecessor:
		buf = f.LeavePredecessor.encode(buf)
	case FindFinger:
		buf = f.FindFinger.encode(buf)
	case FindFingerSuccess:
		buf = f.FindFingerSuccess.encode(buf)
	case LookupPublish:
		buf = f.LookupPublish.encode(buf)
	case LookupPublishSuccess:
		buf = f.LookupPublishSuccess.encode(buf)
	}
	return buf
}

// DecodeChordFrame parses an application-port datagram. It fails with a
// *DecodeError on an out-of-range tag or a length mismatch.
func DecodeChordFrame(buf []byte) (ChordFrame, error) {
	if len(buf) < chordHeaderSize {
		return ChordFrame{}, decodeErrorf("frame too short for Chord header: %d bytes", len(buf))
	}
	tag := ChordTag(buf[0])
	if !tag.valid() {
		return ChordFrame{}, decodeErrorf("unknown Chord tag %d", buf[0])
	}
	txnSeq := binary.BigEndian.Uint32(buf[1:5])
	off := chordHeaderSize

	f := ChordFrame{Tag: tag, TxnSeq: txnSeq}
	var err error
	switch tag {
	case FindSuccessor:
		var p FindSuccessorPayload
		p, off, err = decodeFindSuccessorPayload(buf, off)
		f.FindSuccessor = &p
	case JoinChordSuccess:
		var p AddrPayload
		p, off, err = decodeAddrPayload(buf, off)
		f.JoinChordSuccess = &p
	case StabilizeResp:
		var p AddrPayload
		p, off, err = decodeAddrPayload(buf, off)
		f.StabilizeResp = &p
	case RingState:
		var p AddrPayload
		p, off, err = decodeAddrPayload(buf, off)
		f.RingState = &p
	case LeaveSuccessor:
		var p AddrPayload
		p, off, err = decodeAddrPayload(buf, off)
		f.LeaveSuccessor = &p
	case LeavePredecessor:
		var p AddrPayload
		p, off, err = decodeAddrPayload(buf, off)
		f.LeavePredecessor = &p
	case FindFinger:
		var p FindFingerPayload
		p, off, err = decodeFindFingerPayload(buf, off)
		f.FindFinger = &p
	case FindFingerSuccess:
		var p FindFingerSuccessPayload
		p, off, err = decodeFindFingerSuccessPayload(buf, off)
		f.FindFingerSuccess = &p
	case LookupPublish:
		var p LookupPublishPayload
		p, off, err = decodeLookupPublishPayload(buf, off)
		f.LookupPublish = &p
	case LookupPublishSuccess:
		var p LookupPublishSuccessPayload
		p, off, err = decodeLookupPublishSuccessPayload(buf, off)
		f.LookupPublishSuccess = &p
	}
	if err != nil {
		return ChordFrame{}, err
	}
	if off != len(buf) {
		return ChordFrame{}, decodeErrorf("trailing bytes after payload: got %d, consumed %d", len(buf), off)
	}
	return f, nil
}
