package messaging

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type streamID struct {
	ms  uint64
	seq uint64
}

func parseID(id string) (streamID, error) {
	switch id {
	case PendingMin:
		return streamID{}, nil
	case PendingMax:
		return streamID{ms: math.MaxUint64, seq: math.MaxUint64}, nil
	}
	msPart, seqPart, hasSeq := strings.Cut(id, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return streamID{}, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	if !hasSeq {
		return streamID{ms: ms}, nil
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return streamID{}, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	return streamID{ms: ms, seq: seq}, nil
}

func (s streamID) String() string { return fmt.Sprintf("%d-%d", s.ms, s.seq) }

// CompareIDs orders two stream IDs numerically. It returns -1, 0 or 1.
// Unparseable IDs fall back to lexical order.
func CompareIDs(a, b string) int {
	pa, errA := parseID(a)
	pb, errB := parseID(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case pa.ms < pb.ms:
		return -1
	case pa.ms > pb.ms:
		return 1
	case pa.seq < pb.seq:
		return -1
	case pa.seq > pb.seq:
		return 1
	}
	return 0
}

// NextID returns the smallest stream ID strictly greater than id. It is used to turn an
// inclusive range start into an exclusive one.
func NextID(id string) (string, error) {
	p, err := parseID(id)
	if err != nil {
		return "", err
	}
	if p.seq == math.MaxUint64 {
		if p.ms == math.MaxUint64 {
			return "", fmt.Errorf("stream id %q has no successor", id)
		}
		return streamID{ms: p.ms + 1}.String(), nil
	}
	return streamID{ms: p.ms, seq: p.seq + 1}.String(), nil
}
