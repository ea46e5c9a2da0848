package layout

import (
	"github.com/wippyai/canoncall/errors"
)

// Marshal packs the members of native into dst in declaration order and
// returns the number of bytes written, which is always s.CanonicalSize.
//
// dst must hold at least s.CanonicalSize bytes. Every check runs before the
// first byte is copied, so a failed call leaves dst untouched.
func Marshal(s *Struct, native []byte, dst []byte) (int, error) {
	if err := checkArgs(errors.PhaseMarshal, s, native, dst); err != nil {
		return 0, err
	}
	if uintptr(len(dst)) < s.CanonicalSize {
		return 0, withStruct(errors.BufferSize(errors.PhaseMarshal, len(dst), int(s.CanonicalSize), false), s)
	}
	if err := s.check(errors.PhaseMarshal, native); err != nil {
		return 0, err
	}

	var off uintptr
	for _, m := range s.Members {
		off += uintptr(copy(dst[off:off+m.Size], native[m.Offset:m.Offset+m.Size]))
	}
	return int(off), nil
}

// MarshalAppend appends the canonical form of native to dst.
func MarshalAppend(s *Struct, native []byte, dst []byte) ([]byte, error) {
	if s == nil {
		return dst, errors.NilPointer(errors.PhaseMarshal, "struct descriptor")
	}
	start := len(dst)
	dst = append(dst, make([]byte, s.CanonicalSize)...)
	n, err := Marshal(s, native, dst[start:])
	if err != nil {
		return dst[:start], err
	}
	return dst[:start+n], nil
}

// Unmarshal copies the packed members in src into their native offsets in
// native and returns the number of bytes consumed.
//
// src must be exactly s.CanonicalSize bytes long: a longer source would mean
// every subsequent read is misaligned, so it is rejected like a short one.
func Unmarshal(s *Struct, src []byte, native []byte) (int, error) {
	if err := checkArgs(errors.PhaseUnmarshal, s, src, native); err != nil {
		return 0, err
	}
	if uintptr(len(src)) != s.CanonicalSize {
		return 0, withStruct(errors.BufferSize(errors.PhaseUnmarshal, len(src), int(s.CanonicalSize), true), s)
	}
	if err := s.check(errors.PhaseUnmarshal, native); err != nil {
		return 0, err
	}

	var off uintptr
	for _, m := range s.Members {
		off += uintptr(copy(native[m.Offset:m.Offset+m.Size], src[off:off+m.Size]))
	}
	return int(off), nil
}

func checkArgs(phase errors.Phase, s *Struct, a, b []byte) error {
	switch {
	case s == nil:
		return errors.NilPointer(phase, "struct descriptor")
	case a == nil:
		return withStruct(errors.NilPointer(phase, "source buffer"), s)
	case b == nil:
		return withStruct(errors.NilPointer(phase, "destination buffer"), s)
	}
	return nil
}

// check validates the descriptor against itself and every member against the
// native region.
func (s *Struct) check(phase errors.Phase, native []byte) error {
	if sum := s.memberSum(); sum != s.CanonicalSize {
		return withStruct(errors.Metadata(phase, "canonical size", s.CanonicalSize, sum), s)
	}
	n := uintptr(len(native))
	for i, m := range s.Members {
		if m.Offset > n || m.Size > n-m.Offset {
			return withStruct(errors.OutOfBounds(phase, []string{s.memberName(i)}, m.Offset+m.Size, n), s)
		}
	}
	return nil
}

func withStruct(err *errors.Error, s *Struct) *errors.Error {
	err.Type = s.Name
	return err
}
