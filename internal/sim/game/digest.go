package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Digest hashes the state in a canonical order. Two states with the same
// digest are identical for replay purposes.
func (s *State) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(s.Turn))
	players := s.Players()
	digestWriteI64(h, &tmp, int64(len(players)))
	for _, p := range players {
		digestWriteString(h, &tmp, p)
		digestWriteI64(h, &tmp, int64(s.PlayerLocations[p]))
		digestWriteString(h, &tmp, s.Score(p).RatString())
		m := s.Muds[p]
		digestWriteI64(h, &tmp, int64(m.Target))
		digestWriteI64(h, &tmp, int64(m.Count))
	}

	teams := s.TeamNames()
	digestWriteI64(h, &tmp, int64(len(teams)))
	for _, t := range teams {
		digestWriteString(h, &tmp, t)
		digestWriteI64(h, &tmp, int64(len(s.Teams[t])))
		for _, p := range s.Teams[t] {
			digestWriteString(h, &tmp, p)
		}
	}

	digestWriteI64(h, &tmp, int64(len(s.Cheese)))
	for _, c := range s.Cheese {
		digestWriteI64(h, &tmp, int64(c))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	h.Write(tmp[:])
}

func digestWriteString(h hash.Hash, tmp *[8]byte, v string) {
	digestWriteI64(h, tmp, int64(len(v)))
	h.Write([]byte(v))
}
