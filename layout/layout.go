// Package layout converts structs between their native layout and canonical form.
//
// A Struct descriptor lists members in declaration order as (offset, size)
// pairs in the native layout. Canonical form is the members' bytes packed back
// to back with no padding, so the canonical size of a struct is the sum of
// its member sizes.
//
//	native   | a a . . | b b b b | c . . . |
//	canonical| a a | b b b b | c |
//
// Native memory is addressed as a []byte view: host values through Bytes,
// WebAssembly guest structs through a view of linear memory.
//
// Descriptors are immutable once built and may be shared across goroutines.
// Marshal and Unmarshal validate the descriptor on every call; metadata that
// disagrees with itself is an error, never a silent truncation.
package layout

import (
	"strconv"

	"github.com/wippyai/canoncall/errors"
)

// Member is one struct member in native layout.
type Member struct {
	Name   string
	Offset uintptr
	Size   uintptr
}

// Struct describes a struct's native members and canonical size.
type Struct struct {
	Name          string
	Members       []Member
	CanonicalSize uintptr
}

// New builds a descriptor whose canonical size is the sum of member sizes.
func New(name string, members ...Member) *Struct {
	s := &Struct{
		Name:    name,
		Members: members,
	}
	s.CanonicalSize = s.memberSum()
	return s
}

func (s *Struct) memberSum() uintptr {
	var total uintptr
	for _, m := range s.Members {
		total += m.Size
	}
	return total
}

// Validate reports a metadata error if CanonicalSize disagrees with the member sizes.
func (s *Struct) Validate() error {
	if s == nil {
		return errors.NilPointer(errors.PhaseValidate, "struct descriptor")
	}
	if sum := s.memberSum(); sum != s.CanonicalSize {
		err := errors.Metadata(errors.PhaseValidate, "canonical size", s.CanonicalSize, sum)
		err.Type = s.Name
		return err
	}
	return nil
}

// NativeSize returns the smallest native region that covers every member.
func (s *Struct) NativeSize() uintptr {
	var end uintptr
	for _, m := range s.Members {
		if e := m.Offset + m.Size; e > end {
			end = e
		}
	}
	return end
}

// memberName returns a printable path element for member i.
func (s *Struct) memberName(i int) string {
	if n := s.Members[i].Name; n != "" {
		return n
	}
	return "#" + strconv.Itoa(i)
}
