// Package directory holds the process-wide static mapping between operator
// node numbers and main IPv4 addresses. It is built once at startup from
// config.Directory and never mutated afterward; both engines consult it for
// reverse lookups (turning a node number typed at the REPL into an address)
// and forward lookups (turning an advertised IP back into a node number for
// logging and operator commands).
package directory

import (
	"fmt"
	"net"
	"sort"

	"overlaysearch/internal/config"
)

// Directory is an immutable node-number <-> main-IP mapping.
type Directory struct {
	byNumber map[int]string
	byIP     map[string]int
}

// New builds a Directory from the static config table.
func New(cfg config.Directory) *Directory {
	d := &Directory{
		byNumber: make(map[int]string, len(cfg.Static)),
		byIP:     make(map[string]int, len(cfg.Static)),
	}
	for number, ip := range cfg.Static {
		d.byNumber[number] = ip
		d.byIP[ip] = number
	}
	return d
}

// IPFor resolves a node number to its main IPv4 address.
func (d *Directory) IPFor(number int) (string, bool) {
	ip, ok := d.byNumber[number]
	return ip, ok
}

// NumberFor resolves a main IPv4 address back to its node number.
func (d *Directory) NumberFor(ip string) (int, bool) {
	n, ok := d.byIP[ip]
	return n, ok
}

// AddrFor resolves a node number to a "ip:port" address using the given port.
func (d *Directory) AddrFor(number int, port int) (string, error) {
	ip, ok := d.IPFor(number)
	if !ok {
		return "", fmt.Errorf("node number %d not in directory", number)
	}
	return net.JoinHostPort(ip, fmt.Sprintf("%d", port)), nil
}

// Numbers returns all known node numbers in ascending order.
func (d *Directory) Numbers() []int {
	out := make([]int, 0, len(d.byNumber))
	for n := range d.byNumber {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
