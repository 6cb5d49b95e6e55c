package domain

import "testing"

func TestBetween(t *testing.T) {
	sp := StandardSpace()

	a, _ := sp.FromHexString("10")
	b, _ := sp.FromHexString("20")
	x, _ := sp.FromHexString("18")

	if !x.Between(a, b) {
		t.Errorf("expected 0x18 in (0x10, 0x20]")
	}
	if a.Between(a, b) {
		t.Errorf("did not expect 0x10 in (0x10, 0x20]")
	}
	if !b.Between(a, b) {
		t.Errorf("expected 0x20 in (0x10, 0x20] (closed right end)")
	}

	// wrap-around: (0x20, 0x10]
	y, _ := sp.FromHexString("05")
	if !y.Between(b, a) {
		t.Errorf("expected wrap-around 0x05 in (0x20, 0x10]")
	}
}

func TestBetweenOpen(t *testing.T) {
	sp := StandardSpace()
	a, _ := sp.FromHexString("10")
	b, _ := sp.FromHexString("20")

	if b.BetweenOpen(a, b) {
		t.Errorf("did not expect 0x20 in open interval (0x10, 0x20)")
	}
	if a.BetweenOpen(a, b) {
		t.Errorf("did not expect 0x10 in open interval (0x10, 0x20)")
	}
	x, _ := sp.FromHexString("18")
	if !x.BetweenOpen(a, b) {
		t.Errorf("expected 0x18 in open interval (0x10, 0x20)")
	}
}

func TestAddModAndPowerOfTwoMod(t *testing.T) {
	sp := StandardSpace()
	self := sp.NewIdFromString("10.0.0.1")

	p0 := sp.PowerOfTwoMod(0)
	sum, err := sp.AddMod(self, p0)
	if err != nil {
		t.Fatalf("AddMod failed: %v", err)
	}
	want, _ := sp.AddMod(self, sp.FromUint64(1))
	if !sum.Equal(want) {
		t.Errorf("PowerOfTwoMod(0) did not behave like +1: got %s want %s", sum, want)
	}
}

func TestNewIdFromStringDeterministic(t *testing.T) {
	sp := StandardSpace()
	id1 := sp.NewIdFromString("192.168.1.1")
	id2 := sp.NewIdFromString("192.168.1.1")
	if !id1.Equal(id2) {
		t.Errorf("expected deterministic hashing of the same address")
	}
	if err := sp.IsValidID(id1); err != nil {
		t.Errorf("expected valid id, got %v", err)
	}
}

func TestHexRoundTrip(t *testing.T) {
	sp := StandardSpace()
	id := sp.NewIdFromString("10.0.0.5")
	s := id.ToHexString(false)
	back, err := sp.FromHexString(s)
	if err != nil {
		t.Fatalf("FromHexString failed: %v", err)
	}
	if !id.Equal(back) {
		t.Errorf("hex round trip mismatch: %s != %s", id, back)
	}
}
