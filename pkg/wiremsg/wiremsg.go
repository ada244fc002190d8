// Package wiremsg implements the pipe-delimited wire codec for the three
// gossip variants (spec §4.2). Packets are UTF-8 text with no framing
// beyond the datagram boundary; a trailing NUL byte is tolerated on
// decode, echoing the C-string packets the original ns-3 applications
// built with sprintf + an explicit '\0' terminator.
package wiremsg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFieldCount is returned when a decoded packet does not have the field
// count the target variant requires. Callers map this into node.DecodeError
// and drop the packet (spec §4.2, §7).
var ErrFieldCount = errors.New("wiremsg: wrong field count")

// precision round-trips any float64 exactly via strconv's shortest-exact
// representation, comfortably exceeding the "at least 10 significant
// digits" requirement of spec §4.2 and satisfying the codec round-trip
// property P8.
const precision = -1

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', precision, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func trimNUL(s string) string {
	return strings.TrimRight(s, "\x00")
}

// MeanMsg is the MeanGossip wire payload: a single decimal number.
type MeanMsg struct {
	W float64
}

func (m MeanMsg) Encode() []byte {
	return []byte(formatFloat(m.W))
}

func DecodeMean(b []byte) (MeanMsg, error) {
	s := trimNUL(string(b))
	w, err := parseFloat(s)
	if err != nil {
		return MeanMsg{}, fmt.Errorf("wiremsg: decode MeanMsg: %w", err)
	}
	return MeanMsg{W: w}, nil
}

// VarMsg is the VarGossip wire payload: "<m0>|<w>|<w2>".
type VarMsg struct {
	M0 float64
	W  float64
	W2 float64
}

func (m VarMsg) Encode() []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", formatFloat(m.M0), formatFloat(m.W), formatFloat(m.W2)))
}

func DecodeVar(b []byte) (VarMsg, error) {
	fields := strings.Split(trimNUL(string(b)), "|")
	if len(fields) != 3 {
		return VarMsg{}, fmt.Errorf("wiremsg: decode VarMsg: %w: got %d fields", ErrFieldCount, len(fields))
	}
	m0, err := parseFloat(fields[0])
	if err != nil {
		return VarMsg{}, fmt.Errorf("wiremsg: decode VarMsg m0: %w", err)
	}
	w, err := parseFloat(fields[1])
	if err != nil {
		return VarMsg{}, fmt.Errorf("wiremsg: decode VarMsg w: %w", err)
	}
	w2, err := parseFloat(fields[2])
	if err != nil {
		return VarMsg{}, fmt.Errorf("wiremsg: decode VarMsg w2: %w", err)
	}
	return VarMsg{M0: m0, W: w, W2: w2}, nil
}

// EpochMsg is the MultiphaseVarGossip wire payload: "<epoch>|<m0>|<w>|<w2>".
type EpochMsg struct {
	Epoch int
	M0    float64
	W     float64
	W2    float64
}

func (m EpochMsg) Encode() []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%s", m.Epoch, formatFloat(m.M0), formatFloat(m.W), formatFloat(m.W2)))
}

func DecodeEpoch(b []byte) (EpochMsg, error) {
	fields := strings.Split(trimNUL(string(b)), "|")
	if len(fields) != 4 {
		return EpochMsg{}, fmt.Errorf("wiremsg: decode EpochMsg: %w: got %d fields", ErrFieldCount, len(fields))
	}
	epoch, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return EpochMsg{}, fmt.Errorf("wiremsg: decode EpochMsg epoch: %w", err)
	}
	m0, err := parseFloat(fields[1])
	if err != nil {
		return EpochMsg{}, fmt.Errorf("wiremsg: decode EpochMsg m0: %w", err)
	}
	w, err := parseFloat(fields[2])
	if err != nil {
		return EpochMsg{}, fmt.Errorf("wiremsg: decode EpochMsg w: %w", err)
	}
	w2, err := parseFloat(fields[3])
	if err != nil {
		return EpochMsg{}, fmt.Errorf("wiremsg: decode EpochMsg w2: %w", err)
	}
	return EpochMsg{Epoch: epoch, M0: m0, W: w, W2: w2}, nil
}
