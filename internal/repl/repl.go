// Package repl is the operator console: a peterh/liner-based interactive
// shell dispatching commands to the CDE and LSE engines and the Search
// Layer (ground: cmd/client/main.go's liner loop and command table,
// translated from a single gRPC-backed Koorde client into a dispatcher
// over the three local in-process engines this node runs).
package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"overlaysearch/internal/cde"
	"overlaysearch/internal/lse"
	"overlaysearch/internal/search"
)

// Console is the operator shell for one node's CDE engine, LSE engine and
// Search Layer.
type Console struct {
	prompt string
	cde    *cde.Engine
	lse    *lse.Engine
	search *search.Layer
}

// New builds a Console. lseEngine and searchLayer may be nil if the node
// doesn't run those subsystems; the corresponding commands then print that
// the subsystem is not running instead of panicking.
func New(prompt string, cdeEngine *cde.Engine, lseEngine *lse.Engine, searchLayer *search.Layer) *Console {
	return &Console{prompt: prompt, cde: cdeEngine, lse: lseEngine, search: searchLayer}
}

// Run drives the console until the user exits or ctx is canceled.
func (c *Console) Run(ctx context.Context) {
	fmt.Println("overlaysearch operator console.")
	fmt.Println("commands: cping/lping, dump routes/neighbors/lsa, fingers, join, leave, ringstate, publish, search, exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		input, err := line.Prompt(c.prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("aborted")
				continue
			}
			return
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}

		if c.dispatch(ctx, args) {
			return
		}
	}
}

// dispatch runs one command. It returns true if the console should exit.
func (c *Console) dispatch(ctx context.Context, args []string) bool {
	switch args[0] {

	case "cping":
		if len(args) < 3 || c.cde == nil {
			fmt.Println("usage: cping <ip> <message>")
			return false
		}
		c.cde.Ping(args[1], args[2])
		fmt.Println("cde ping sent")

	case "lping":
		if len(args) < 3 || c.lse == nil {
			fmt.Println("usage: lping <ip> <message> (lse not running)")
			return false
		}
		c.lse.Ping(args[1], args[2])
		fmt.Println("lse ping sent")

	case "dump":
		if len(args) < 2 {
			fmt.Println("usage: dump routes|neighbors|lsa")
			return false
		}
		if c.lse == nil {
			fmt.Println("lse not running")
			return false
		}
		switch strings.ToLower(args[1]) {
		case "routes":
			routes := c.lse.DumpRoutes()
			fmt.Printf("forwarding table (%d entries):\n", len(routes))
			for _, r := range routes {
				fmt.Printf("  %s via %s dev %s cost=%d\n", r.DestIP, r.NextHopIP, r.OutgoingInterfaceIP, r.Cost)
			}
		case "neighbors":
			neighbors := c.lse.DumpNeighbors()
			fmt.Printf("neighbors (%d):\n", len(neighbors))
			for _, n := range neighbors {
				fmt.Printf("  %s dev %s\n", n.NeighborIP, n.InterfaceIP)
			}
		case "lsa":
			lsas := c.lse.DumpLSA()
			fmt.Printf("topology database (%d LSAs):\n", len(lsas))
			for _, l := range lsas {
				fmt.Printf("  %s seq=%d neighbors=[%s]\n", l.Originator, l.Seq, strings.Join(l.Neighbors, ", "))
			}
		default:
			fmt.Println("usage: dump routes|neighbors|lsa")
		}

	case "fingers":
		if c.cde == nil {
			fmt.Println("cde not running")
			return false
		}
		for _, f := range c.cde.Fingers() {
			if f.Node == nil {
				fmt.Printf("  [%d] target=%s (empty)\n", f.Slot, f.Target)
				continue
			}
			fmt.Printf("  [%d] target=%s -> %s@%s\n", f.Slot, f.Target, f.Node.ID.String(), f.Node.Addr)
		}

	case "join":
		if len(args) < 3 || c.cde == nil {
			fmt.Println("usage: join <targetNumber> <selfNumber>")
			return false
		}
		target, err1 := strconv.Atoi(args[1])
		self, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			fmt.Println("usage: join <targetNumber> <selfNumber>")
			return false
		}
		if err := c.cde.Join(target, self); err != nil {
			fmt.Printf("join failed: %v\n", err)
		} else {
			fmt.Println("join succeeded")
		}

	case "leave":
		if c.cde == nil {
			fmt.Println("cde not running")
			return false
		}
		if err := c.cde.Leave(); err != nil {
			fmt.Printf("leave failed: %v\n", err)
		} else {
			fmt.Println("leave succeeded")
		}

	case "ringstate":
		if c.cde == nil {
			fmt.Println("cde not running")
			return false
		}
		if err := c.cde.RingState(); err != nil {
			fmt.Printf("ringstate failed: %v\n", err)
		}

	case "publish":
		if len(args) < 3 || c.search == nil {
			fmt.Println("usage: publish <term> <docID> (search layer not running)")
			return false
		}
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c.search.Publish(reqCtx, args[1], args[2])
		cancel()
		fmt.Println("publish complete")

	case "search":
		if len(args) < 2 || c.search == nil {
			fmt.Println("usage: search <term> [term...] (search layer not running)")
			return false
		}
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		results, err := c.search.Search(reqCtx, args[1:])
		cancel()
		if err != nil {
			fmt.Printf("search failed: %v\n", err)
			return false
		}
		fmt.Printf("results (%d): %s\n", len(results), strings.Join(results, ", "))

	case "exit", "quit":
		fmt.Println("bye")
		return true

	default:
		fmt.Printf("unknown command: %s\n", args[0])
	}
	return false
}
