package wire

import (
	"math/rand"
	"testing"
)

func TestSLRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	frames := []SLFrame{
		{Tag: StorePosting, TxnSeq: r.Uint32(), StorePosting: &StorePostingPayload{Term: "alpha", DocID: "doc-1"}},
		{Tag: GetPostingsReq, TxnSeq: r.Uint32(), GetPostingsReq: &GetPostingsReqPayload{ReplyTo: randIPv4(r), Term: "beta"}},
		{Tag: GetPostingsResp, TxnSeq: r.Uint32(), GetPostingsResp: &GetPostingsRespPayload{Term: "gamma", DocIDs: []string{"doc-1", "doc-2", "doc-3"}}},
		{Tag: GetPostingsResp, TxnSeq: r.Uint32(), GetPostingsResp: &GetPostingsRespPayload{Term: "empty", DocIDs: nil}},
	}

	for _, f := range frames {
		enc := f.Encode()
		if len(enc) != f.Size() {
			t.Fatalf("tag %d: Size()=%d but Encode() produced %d bytes", f.Tag, f.Size(), len(enc))
		}
		dec, err := DecodeSLFrame(enc)
		if err != nil {
			t.Fatalf("tag %d: decode failed: %v", f.Tag, err)
		}
		reenc := dec.Encode()
		if string(reenc) != string(enc) {
			t.Fatalf("tag %d: re-encode mismatch:\n got  %x\n want %x", f.Tag, reenc, enc)
		}
	}
}

func TestSLFuzz(t *testing.T) {
	r := rand.New(rand.NewSource(123))
	tags := []SLTag{StorePosting, GetPostingsReq, GetPostingsResp}
	const iterations = 10000 // per tag
	for i := 0; i < iterations*len(tags); i++ {
		tag := tags[i%len(tags)]
		f := SLFrame{Tag: tag, TxnSeq: r.Uint32()}
		switch tag {
		case StorePosting:
			f.StorePosting = &StorePostingPayload{Term: randString(r, 32), DocID: randString(r, 32)}
		case GetPostingsReq:
			f.GetPostingsReq = &GetPostingsReqPayload{ReplyTo: randIPv4(r), Term: randString(r, 32)}
		case GetPostingsResp:
			n := r.Intn(6)
			docIDs := make([]string, n)
			for j := range docIDs {
				docIDs[j] = randString(r, 16)
			}
			f.GetPostingsResp = &GetPostingsRespPayload{Term: randString(r, 32), DocIDs: docIDs}
		}
		enc := f.Encode()
		if len(enc) != f.Size() {
			t.Fatalf("iter %d tag %d: size mismatch", i, tag)
		}
		dec, err := DecodeSLFrame(enc)
		if err != nil {
			t.Fatalf("iter %d tag %d: decode failed: %v", i, tag, err)
		}
		if len(dec.Encode()) != len(enc) {
			t.Fatalf("iter %d tag %d: re-encoded size mismatch", i, tag)
		}
	}
}

func TestSLDecodeErrorOnBadTag(t *testing.T) {
	if _, err := DecodeSLFrame([]byte{0xFF, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected DecodeError for out-of-range SL tag")
	}
}

func TestSLDecodeErrorOnTruncatedFrame(t *testing.T) {
	f := SLFrame{Tag: StorePosting, StorePosting: &StorePostingPayload{Term: "alpha", DocID: "doc-1"}}
	enc := f.Encode()
	if _, err := DecodeSLFrame(enc[:len(enc)-1]); err == nil {
		t.Fatal("expected DecodeError for truncated frame")
	}
}

func TestSLDecodeErrorOnShortHeader(t *testing.T) {
	if _, err := DecodeSLFrame([]byte{byte(StorePosting), 0, 0}); err == nil {
		t.Fatal("expected DecodeError for short header")
	}
}
