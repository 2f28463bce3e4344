// Package publicid encodes internal sequential dimension ids into opaque,
// URL-safe public identifiers and back. Encoding is deterministic: the
// alphabet and minimum length are fixed at build time, so the same internal
// id always yields the same public id across processes and restarts.
package publicid

import (
	"errors"
	"fmt"

	"github.com/sqids/sqids-go"
)

// The alphabet is a fixed shuffle of the URL-safe set. Changing it would
// re-key every published identifier, so treat it as frozen.
const (
	alphabet  = "k3G7QAe51FCsPW92uEOyq4Bg6Sp8YzVTmnU0liwDdHXLajZrfxNhobJIRcMvKt"
	minLength = 10
)

var ErrInvalidID = errors.New("publicid: invalid public id")

type Codec struct {
	s *sqids.Sqids
}

func NewCodec() (*Codec, error) {
	s, err := sqids.New(sqids.Options{
		Alphabet:  alphabet,
		MinLength: minLength,
	})
	if err != nil {
		return nil, fmt.Errorf("publicid: init codec: %w", err)
	}
	return &Codec{s: s}, nil
}

func (c *Codec) Encode(id int64) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("publicid: cannot encode negative id %d", id)
	}
	out, err := c.s.Encode([]uint64{uint64(id)})
	if err != nil {
		return "", fmt.Errorf("publicid: encode %d: %w", id, err)
	}
	return out, nil
}

// Decode inverts Encode. A canonicality check (re-encode must reproduce the
// input) rejects strings that merely happen to decode, so forged or
// truncated ids fail instead of aliasing a real one.
func (c *Codec) Decode(public string) (int64, error) {
	nums := c.s.Decode(public)
	if len(nums) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, public)
	}
	canonical, err := c.s.Encode(nums)
	if err != nil || canonical != public {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, public)
	}
	if nums[0] > uint64(1)<<62 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidID, public)
	}
	return int64(nums[0]), nil
}
