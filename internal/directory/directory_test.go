package directory

import (
	"testing"

	"overlaysearch/internal/config"
)

func testDirectory() *Directory {
	return New(config.Directory{Static: map[int]string{
		1: "10.0.0.1",
		2: "10.0.0.2",
		3: "10.0.0.3",
	}})
}

func TestIPForAndNumberFor(t *testing.T) {
	d := testDirectory()

	ip, ok := d.IPFor(2)
	if !ok || ip != "10.0.0.2" {
		t.Fatalf("IPFor(2) = %q, %v, want 10.0.0.2, true", ip, ok)
	}

	n, ok := d.NumberFor("10.0.0.3")
	if !ok || n != 3 {
		t.Fatalf("NumberFor(10.0.0.3) = %d, %v, want 3, true", n, ok)
	}

	if _, ok := d.IPFor(99); ok {
		t.Fatalf("IPFor(99) should miss")
	}
	if _, ok := d.NumberFor("10.0.0.99"); ok {
		t.Fatalf("NumberFor(10.0.0.99) should miss")
	}
}

func TestAddrFor(t *testing.T) {
	d := testDirectory()

	addr, err := d.AddrFor(1, 7000)
	if err != nil {
		t.Fatalf("AddrFor: %v", err)
	}
	if addr != "10.0.0.1:7000" {
		t.Fatalf("AddrFor(1, 7000) = %q, want 10.0.0.1:7000", addr)
	}

	if _, err := d.AddrFor(99, 7000); err == nil {
		t.Fatalf("AddrFor(99, ...) should error")
	}
}

func TestNumbers(t *testing.T) {
	d := testDirectory()
	got := d.Numbers()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Numbers() = %v, want %v", got, want)
	}
	for i, n := range want {
		if got[i] != n {
			t.Fatalf("Numbers()[%d] = %d, want %d", i, got[i], n)
		}
	}
}
