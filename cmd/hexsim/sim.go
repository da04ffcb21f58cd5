package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sibexico/hexbuffer/storage"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  access <frame> [lookup|scan|index]   record an access at the next tick
  pin <frame>                          mark frame non-evictable
  unpin <frame>                        mark frame evictable
  remove <frame>                       drop an evictable frame
  evict                                select and drop a victim
  size                                 number of evictable frames
  show                                 dump tracked frames (lru-k only)
  help                                 show this help
  quit | exit                          leave`

// Simulator drives a replacer from text commands
type Simulator struct {
	replacer storage.Replacer
	clock    *storage.LogicalClock
	capacity int
}

// NewSimulator creates a simulator over a fresh replacer
func NewSimulator(policy string, capacity, k int) (*Simulator, error) {
	r, err := storage.NewReplacer(policy, capacity, k)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		replacer: r,
		clock:    storage.NewLogicalClock(),
		capacity: capacity,
	}, nil
}

// Exec runs one command line and writes its result to out.
// Returns errQuit when the user asks to leave.
func (s *Simulator) Exec(line string, out io.Writer) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "access", "a":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: access <frame> [lookup|scan|index]")
		}
		frame, err := parseFrame(args[0])
		if err != nil {
			return err
		}
		accessType := storage.AccessUnknown
		if len(args) == 2 {
			if accessType, err = storage.ParseAccessType(args[1]); err != nil {
				return err
			}
		}
		ts := s.clock.Now()
		if err := s.replacer.RecordAccess(frame, ts, accessType); err != nil {
			return err
		}
		fmt.Fprintf(out, "frame %d accessed at t=%d\n", frame, ts)

	case "pin", "unpin":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <frame>", cmd)
		}
		frame, err := parseFrame(args[0])
		if err != nil {
			return err
		}
		if err := s.replacer.SetEvictable(frame, cmd == "unpin"); err != nil {
			return err
		}
		fmt.Fprintf(out, "size=%d\n", s.replacer.Size())

	case "remove", "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <frame>")
		}
		frame, err := parseFrame(args[0])
		if err != nil {
			return err
		}
		if err := s.replacer.Remove(frame); err != nil {
			return err
		}
		fmt.Fprintf(out, "size=%d\n", s.replacer.Size())

	case "evict", "e":
		frame, ok := s.replacer.Evict()
		if !ok {
			fmt.Fprintln(out, "victim: none")
			return nil
		}
		fmt.Fprintf(out, "victim: %d\n", frame)

	case "size":
		fmt.Fprintf(out, "size=%d\n", s.replacer.Size())

	case "show":
		s.show(out)

	case "help", "?":
		fmt.Fprintln(out, helpText)

	case "quit", "exit", `\q`:
		return errQuit

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func (s *Simulator) show(out io.Writer) {
	lruk, ok := s.replacer.(*storage.LRUKReplacer)
	if !ok {
		fmt.Fprintf(out, "size=%d\n", s.replacer.Size())
		return
	}

	fmt.Fprintf(out, "k=%d size=%d tracked=%d\n", lruk.K(), lruk.Size(), lruk.Tracked())
	for f := 0; f < s.capacity; f++ {
		snap, ok := lruk.History(storage.FrameID(f))
		if !ok {
			continue
		}
		state := "pinned"
		if snap.Evictable {
			state = "evictable"
		}
		fmt.Fprintf(out, "  frame %d %-9s history=%v\n", f, state, snap.Timestamps)
	}
}

func parseFrame(s string) (storage.FrameID, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid frame id %q", s)
	}
	return storage.FrameID(n), nil
}
