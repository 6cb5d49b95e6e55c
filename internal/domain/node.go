package domain

// Node is a Chord DHT participant identified by its ring ID and UDP address.
type Node struct {
	ID   ID     // ring identifier, SHA-1 of the main IP address
	Addr string // application-port UDP address, e.g. "127.0.0.1:10001"
}

// NodeNumber is the operator-facing small integer identifying a node in the
// address directory (distinct from its 160-bit ring ID).
type NodeNumber int
