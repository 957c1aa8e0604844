// Package p2p implements the length-prefixed framed wire protocol, the
// peer list, and the single network goroutine's event dispatch: listening,
// bootstrap-and-gossip discovery, and routing of received transactions and
// blocks into the datastore and miner.
package p2p

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// cmdSize is the width of the 12-byte ASCII, space-padded command field.
const cmdSize = 12

// Known command codes.
const (
	CmdAddPeer    = "addp"
	CmdRemovePeer = "remp"
	CmdListPeers  = "lisp"
	CmdResponse   = "resp"
	CmdAddTx      = "addt"
	CmdAddBlock   = "addb"
	CmdGetBlock   = "getb"
	CmdBalance    = "blnc"
	CmdValidate   = "vldt"
)

// Frame is one wire message: magic(4) ‖ command(12) ‖ length(4) ‖
// checksum(4) ‖ payload(length). magic and checksum are reserved and
// always written as zero.
type Frame struct {
	Magic    uint32
	Command  string
	Checksum [4]byte
	Payload  []byte
}

func newFrame(cmd string, payload []byte) *Frame {
	return &Frame{Command: cmd, Payload: payload}
}

func padCommand(cmd string) [cmdSize]byte {
	var out [cmdSize]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], cmd)
	return out
}

func trimCommand(b []byte) string {
	return strings.TrimRight(string(b), " ")
}

// WriteFrame writes f to w in the wire layout.
func WriteFrame(w io.Writer, f *Frame) error {
	var head [4 + cmdSize + 4 + 4]byte
	binary.LittleEndian.PutUint32(head[0:4], f.Magic)
	cmd := padCommand(f.Command)
	copy(head[4:4+cmdSize], cmd[:])
	binary.LittleEndian.PutUint32(head[4+cmdSize:4+cmdSize+4], uint32(len(f.Payload)))
	copy(head[4+cmdSize+4:], f.Checksum[:])

	if _, err := w.Write(head[:]); err != nil {
		return fmt.Errorf("p2p: writing frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("p2p: writing frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame blocks until one full frame (header then payload) has been
// read from r, or returns the error that ended the read (closed
// connection, i/o error). Reads block until the frame completes; there
// is no partial-frame resumption.
func ReadFrame(r io.Reader) (*Frame, error) {
	var head [4 + cmdSize + 4 + 4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}

	f := &Frame{
		Magic:   binary.LittleEndian.Uint32(head[0:4]),
		Command: trimCommand(head[4 : 4+cmdSize]),
	}
	copy(f.Checksum[:], head[4+cmdSize+4:])
	length := binary.LittleEndian.Uint32(head[4+cmdSize : 4+cmdSize+4])

	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("p2p: reading frame payload: %w", err)
		}
	}
	return f, nil
}
