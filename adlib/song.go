// Package adlib interprets the Westwood AdLib music and sound effect
// bytecode used by Dune II and Kyrandia into OPL2 register writes, and
// pumps a chip at the fixed 72 Hz driver rate.
package adlib

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Song file layout.
const (
	NumTracks      = 120 // Track table entries at the start of the file
	NumPrograms    = 150 // Program offsets at the start of the sound data
	instrumentSize = 11
	noTrack        = 0xFF
)

var (
	ErrSongTooShort = errors.New("song data too short")
	ErrBadOffset    = errors.New("offset outside sound data")
	ErrNoSuchTrack  = errors.New("track not present")
)

// Song is a parsed song file. It keeps slices of the caller's buffer;
// program counters are offsets into the sound data.
type Song struct {
	tracks []byte
	sound  []byte
}

// ParseSong validates the track table and program offset table of a song
// file.
func ParseSong(data []byte) (*Song, error) {
	if len(data) < NumTracks+NumPrograms*2 {
		return nil, fmt.Errorf("adlib: %d bytes: %w", len(data), ErrSongTooShort)
	}
	return &Song{tracks: data[:NumTracks], sound: data[NumTracks:]}, nil
}

// Track returns the program started by a track, or ErrNoSuchTrack.
func (s *Song) Track(track int) (uint8, error) {
	if track < 0 || track >= NumTracks || s.tracks[track] == noTrack {
		return 0, fmt.Errorf("adlib: track %d: %w", track, ErrNoSuchTrack)
	}
	return s.tracks[track], nil
}

// Subsongs lists the tracks that map to a program.
func (s *Song) Subsongs() []int {
	var out []int
	for i, p := range s.tracks {
		if p != noTrack {
			out = append(out, i)
		}
	}
	return out
}

// SoundData returns the sound data section.
func (s *Song) SoundData() []byte {
	return s.sound
}

// offset reads entry n of the offset table.
func (s *Song) offset(n int) (int, bool) {
	if n < 0 || 2*n+1 >= len(s.sound) {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(s.sound[2*n:])), true
}

// program returns the offset of a program header (channel, priority).
func (s *Song) program(id uint8) (int, error) {
	if int(id) >= NumPrograms {
		return 0, ErrBadProgram
	}
	off, ok := s.offset(int(id))
	if !ok || off+2 > len(s.sound) {
		return 0, ErrBadOffset
	}
	return off, nil
}

// instrument returns the 11 byte operator block of an instrument.
func (s *Song) instrument(id uint8) ([]byte, error) {
	off, ok := s.offset(NumPrograms + int(id))
	if !ok {
		return nil, ErrBadInstrument
	}
	if off+instrumentSize > len(s.sound) {
		return nil, ErrBadOffset
	}
	return s.sound[off : off+instrumentSize], nil
}
