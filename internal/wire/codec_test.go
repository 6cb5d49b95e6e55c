package wire

import (
	"fmt"
	"math/rand"
	"testing"
)

func randIPv4(r *rand.Rand) string {
	return fmt.Sprintf("%d.%d.%d.%d", r.Intn(256), r.Intn(256), r.Intn(256), r.Intn(256))
}

func randDigest(r *rand.Rand) []byte {
	d := make([]byte, digestLen)
	r.Read(d)
	return d
}

func randString(r *rand.Rand, maxLen int) string {
	n := r.Intn(maxLen)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + r.Intn(26))
	}
	return string(b)
}

func TestLSRRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	tags := []LSRTag{LSRPingReq, LSRPingRsp, NDReq, NDRsp, LSP}
	for _, tag := range tags {
		f := LSRFrame{
			Tag:        tag,
			TxnSeq:     r.Uint32(),
			TTL:        uint8(r.Intn(256)),
			Originator: randIPv4(r),
		}
		switch tag {
		case LSP:
			n := r.Intn(5)
			neighbors := make([]string, n)
			for i := range neighbors {
				neighbors[i] = randIPv4(r)
			}
			f.LSP = &LSPPayload{Seq: r.Uint64(), Neighbors: neighbors, DestIP: randIPv4(r), Message: randString(r, 32)}
		default:
			f.Ping = &PingPayload{DestIP: randIPv4(r), Message: randString(r, 32)}
		}

		enc := f.Encode()
		if len(enc) != f.Size() {
			t.Fatalf("tag %d: Size()=%d but Encode() produced %d bytes", tag, f.Size(), len(enc))
		}
		dec, err := DecodeLSRFrame(enc)
		if err != nil {
			t.Fatalf("tag %d: decode failed: %v", tag, err)
		}
		if dec.Tag != f.Tag || dec.TxnSeq != f.TxnSeq || dec.TTL != f.TTL || dec.Originator != f.Originator {
			t.Fatalf("tag %d: header mismatch: got %+v want %+v", tag, dec, f)
		}
	}
}

func TestLSRFuzz(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tags := []LSRTag{LSRPingReq, LSRPingRsp, NDReq, NDRsp, LSP}
	const iterations = 10000 // per tag
	for i := 0; i < iterations*len(tags); i++ {
		tag := tags[i%len(tags)]
		f := LSRFrame{Tag: tag, TxnSeq: r.Uint32(), TTL: uint8(r.Intn(256)), Originator: randIPv4(r)}
		switch tag {
		case LSP:
			n := r.Intn(8)
			neighbors := make([]string, n)
			for j := range neighbors {
				neighbors[j] = randIPv4(r)
			}
			f.LSP = &LSPPayload{Seq: r.Uint64(), Neighbors: neighbors, DestIP: randIPv4(r), Message: randString(r, 64)}
		default:
			f.Ping = &PingPayload{DestIP: randIPv4(r), Message: randString(r, 64)}
		}
		enc := f.Encode()
		if len(enc) != f.Size() {
			t.Fatalf("iter %d: size mismatch", i)
		}
		dec, err := DecodeLSRFrame(enc)
		if err != nil {
			t.Fatalf("iter %d: decode failed: %v", i, err)
		}
		if len(dec.Encode()) != len(enc) {
			t.Fatalf("iter %d: re-encoded size mismatch", i)
		}
	}
}

func TestChordRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	frames := []ChordFrame{
		{Tag: ChordPingReq, TxnSeq: r.Uint32()},
		{Tag: ChordPingRsp, TxnSeq: r.Uint32()},
		{Tag: JoinChord, TxnSeq: r.Uint32()},
		{Tag: JoinChordFail, TxnSeq: r.Uint32()},
		{Tag: Notify, TxnSeq: r.Uint32()},
		{Tag: StabilizeReq, TxnSeq: r.Uint32()},
		{Tag: FindSuccessor, TxnSeq: r.Uint32(), FindSuccessor: &FindSuccessorPayload{ReplyTo: randIPv4(r), Target: randDigest(r)}},
		{Tag: JoinChordSuccess, TxnSeq: r.Uint32(), JoinChordSuccess: &AddrPayload{IP: randIPv4(r)}},
		{Tag: StabilizeResp, TxnSeq: r.Uint32(), StabilizeResp: &AddrPayload{IP: ""}},
		{Tag: RingState, TxnSeq: r.Uint32(), RingState: &AddrPayload{IP: randIPv4(r)}},
		{Tag: LeaveSuccessor, TxnSeq: r.Uint32(), LeaveSuccessor: &AddrPayload{IP: randIPv4(r)}},
		{Tag: LeavePredecessor, TxnSeq: r.Uint32(), LeavePredecessor: &AddrPayload{IP: randIPv4(r)}},
		{Tag: FindFinger, TxnSeq: r.Uint32(), FindFinger: &FindFingerPayload{ReplyTo: randIPv4(r), Target: randDigest(r), Index: uint16(r.Intn(160) + 1)}},
		{Tag: FindFingerSuccess, TxnSeq: r.Uint32(), FindFingerSuccess: &FindFingerSuccessPayload{FingerIP: randIPv4(r), Index: uint16(r.Intn(160) + 1)}},
		{Tag: LookupPublish, TxnSeq: r.Uint32(), LookupPublish: &LookupPublishPayload{Flag: FlagPublish, Initiator: randIPv4(r), Target: randDigest(r), Key: "alpha"}},
		{Tag: LookupPublishSuccess, TxnSeq: r.Uint32(), LookupPublishSuccess: &LookupPublishSuccessPayload{Flag: FlagSearchStep, Responsible: randIPv4(r), Key: "beta"}},
	}

	for _, f := range frames {
		enc := f.Encode()
		if len(enc) != f.Size() {
			t.Fatalf("tag %d: Size()=%d but Encode() produced %d bytes", f.Tag, f.Size(), len(enc))
		}
		dec, err := DecodeChordFrame(enc)
		if err != nil {
			t.Fatalf("tag %d: decode failed: %v", f.Tag, err)
		}
		reenc := dec.Encode()
		if string(reenc) != string(enc) {
			t.Fatalf("tag %d: re-encode mismatch:\n got  %x\n want %x", f.Tag, reenc, enc)
		}
	}
}

func TestChordFuzz(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	tags := []ChordTag{
		ChordPingReq, ChordPingRsp, JoinChord, FindSuccessor, JoinChordSuccess,
		JoinChordFail, Notify, StabilizeReq, StabilizeResp, RingState,
		LeaveSuccessor, LeavePredecessor, FindFinger, FindFingerSuccess,
		LookupPublish, LookupPublishSuccess,
	}
	const iterations = 10000 // per tag
	for i := 0; i < iterations*len(tags); i++ {
		tag := tags[i%len(tags)]
		f := ChordFrame{Tag: tag, TxnSeq: r.Uint32()}
		switch tag {
		case FindSuccessor:
			f.FindSuccessor = &FindSuccessorPayload{ReplyTo: randIPv4(r), Target: randDigest(r)}
		case JoinChordSuccess:
			f.JoinChordSuccess = &AddrPayload{IP: randIPv4(r)}
		case StabilizeResp:
			f.StabilizeResp = &AddrPayload{IP: randIPv4(r)}
		case RingState:
			f.RingState = &AddrPayload{IP: randIPv4(r)}
		case LeaveSuccessor:
			f.LeaveSuccessor = &AddrPayload{IP: randIPv4(r)}
		case LeavePredecessor:
			f.LeavePredecessor = &AddrPayload{IP: randIPv4(r)}
		case FindFinger:
			f.FindFinger = &FindFingerPayload{ReplyTo: randIPv4(r), Target: randDigest(r), Index: uint16(r.Intn(160) + 1)}
		case FindFingerSuccess:
			f.FindFingerSuccess = &FindFingerSuccessPayload{FingerIP: randIPv4(r), Index: uint16(r.Intn(160) + 1)}
		case LookupPublish:
			f.LookupPublish = &LookupPublishPayload{Flag: LookupFlag(r.Intn(3)), Initiator: randIPv4(r), Target: randDigest(r), Key: randString(r, 32)}
		case LookupPublishSuccess:
			f.LookupPublishSuccess = &LookupPublishSuccessPayload{Flag: LookupFlag(r.Intn(3)), Responsible: randIPv4(r), Key: randString(r, 32)}
		}
		enc := f.Encode()
		if len(enc) != f.Size() {
			t.Fatalf("iter %d tag %d: size mismatch", i, tag)
		}
		dec, err := DecodeChordFrame(enc)
		if err != nil {
			t.Fatalf("iter %d tag %d: decode failed: %v", i, tag, err)
		}
		if len(dec.Encode()) != len(enc) {
			t.Fatalf("iter %d tag %d: re-encoded size mismatch", i, tag)
		}
	}
}

func TestDecodeErrorOnBadTag(t *testing.T) {
	if _, err := DecodeLSRFrame([]byte{0xFF, 0, 0, 0, 0, 1, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected DecodeError for out-of-range LSR tag")
	}
	if _, err := DecodeChordFrame([]byte{0xFF, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected DecodeError for out-of-range Chord tag")
	}
}

func TestDecodeErrorOnTruncatedFrame(t *testing.T) {
	f := ChordFrame{Tag: FindSuccessor, FindSuccessor: &FindSuccessorPayload{ReplyTo: "1.2.3.4", Target: randDigest(rand.New(rand.NewSource(3)))}}
	enc := f.Encode()
	if _, err := DecodeChordFrame(enc[:len(enc)-1]); err == nil {
		t.Fatal("expected DecodeError for truncated frame")
	}
}
