package p2p

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log"
	"strings"

	"github.com/kilimba/chainode/ledger"
	"github.com/kilimba/chainode/store"
)

// dispatch routes a decoded frame to its handler by command code.
func (n *Network) dispatch(f *Frame) {
	switch f.Command {
	case CmdAddPeer:
		n.handleAddPeer(string(f.Payload))
	case CmdRemovePeer:
		n.handleRemovePeer(string(f.Payload))
	case CmdListPeers:
		n.handleListPeers(string(f.Payload))
	case CmdResponse:
		n.handleResponse(f.Payload)
	case CmdAddTx:
		n.handleAddTx(f.Payload)
	case CmdAddBlock:
		n.handleAddBlock(f.Payload)
	case CmdGetBlock:
		n.handleGetBlock(f.Payload)
	case CmdBalance:
		n.handleBalance(f.Payload)
	case CmdValidate:
		n.handleValidate(f.Payload)
	default:
		log.Printf("p2p: unknown command %q", f.Command)
	}
}

// handleAddPeer connects out to the announced peer (unless it is us) and
// records it in the datastore and the live list.
func (n *Network) handleAddPeer(payload string) {
	ip, port, err := parseAddr(payload)
	if err != nil {
		log.Printf("p2p: addp: %v", err)
		return
	}
	if ip == n.selfIP && port == n.selfPort {
		return
	}
	if _, err := n.dial(ip, port); err != nil {
		log.Printf("p2p: addp connect to %s:%d: %v", ip, port, err)
	}
}

// handleRemovePeer drops the peer from the live list if present.
func (n *Network) handleRemovePeer(payload string) {
	ip, port, err := parseAddr(payload)
	if err != nil {
		log.Printf("p2p: remp: %v", err)
		return
	}
	n.removePeer(ip, port)
}

// handleListPeers replies to a lisp request with a comma-separated dump
// of every currently known peer's "ip:port".
func (n *Network) handleListPeers(payload string) {
	ip, port, err := parseAddr(payload)
	if err != nil {
		log.Printf("p2p: lisp: %v", err)
		return
	}
	requester := n.findPeer(ip, port)
	if requester == nil {
		return
	}

	addrs := make([]string, 0, len(n.peers))
	for _, p := range n.peers {
		addrs = append(addrs, p.Addr())
	}
	cmd := padCommand(CmdListPeers)
	payloadOut := append(append([]byte{}, cmd[:]...), []byte(strings.Join(addrs, ","))...)
	n.writeTo(requester, newFrame(CmdResponse, payloadOut))
}

// handleResponse dispatches a resp frame by its echoed request code.
func (n *Network) handleResponse(payload []byte) {
	if len(payload) < cmdSize {
		log.Printf("p2p: resp: payload too short (%d bytes)", len(payload))
		return
	}
	code := trimCommand(payload[:cmdSize])
	rest := payload[cmdSize:]

	switch code {
	case CmdListPeers:
		n.handleListPeersResponse(rest)
	case CmdBalance:
		if len(rest) >= 8 {
			log.Printf("p2p: balance received: %d", int64(binary.LittleEndian.Uint64(rest[:8])))
		}
	case CmdValidate:
		if len(rest) >= 4 {
			log.Printf("p2p: validity received: %d", int32(binary.LittleEndian.Uint32(rest[:4])))
		}
	default:
		log.Printf("p2p: resp: unknown echoed code %q", code)
	}
}

// handleListPeersResponse feeds each gossiped "ip:port" entry back
// through the addp handler for opportunistic discovery.
func (n *Network) handleListPeersResponse(payload []byte) {
	for _, addr := range strings.Split(string(payload), ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		n.handleAddPeer(addr)
	}
}

// handleAddTx decodes, verifies, and (if new) persists a transaction,
// forwarding it to the miner as a pre-emption signal.
func (n *Network) handleAddTx(payload []byte) {
	tx, _, err := ledger.DecodeTransaction(payload)
	if err != nil {
		log.Printf("p2p: addt: decode: %v", err)
		return
	}
	if !tx.Verify(n.resolveOutputAddress) {
		return
	}
	if err := n.store.InsertTransaction(tx); err != nil {
		if !errors.Is(err, store.ErrValueExists) {
			log.Printf("p2p: addt: insert: %v", err)
		}
		return
	}
	n.trySendTx(tx)
}

// handleAddBlock decodes, verifies, and (if new) persists a block,
// forwarding it to the miner as a pre-emption signal.
func (n *Network) handleAddBlock(payload []byte) {
	b, err := ledger.DecodeBlock(payload)
	if err != nil {
		log.Printf("p2p: addb: decode: %v", err)
		return
	}
	if !b.Verify(n.resolveOutputAddress) {
		return
	}
	if err := n.store.InsertBlock(b); err != nil {
		if !errors.Is(err, store.ErrValueExists) {
			log.Printf("p2p: addb: insert: %v", err)
		}
		return
	}
	n.trySendBlock(b)
}

// handleGetBlock serves a block by hash to the requester, connecting to
// it first if it is not already known (mirroring the addp connect-on-
// demand behavior this request relies on).
func (n *Network) handleGetBlock(payload []byte) {
	const hashLen = ledger.HashSize
	if len(payload) < hashLen+1 || payload[hashLen] != ',' {
		log.Printf("p2p: getb: malformed payload (%d bytes)", len(payload))
		return
	}
	var hash [ledger.HashSize]byte
	copy(hash[:], payload[:hashLen])
	addrStr := string(payload[hashLen+1:])

	ip, port, err := parseAddr(addrStr)
	if err != nil {
		log.Printf("p2p: getb: %v", err)
		return
	}
	requester := n.findPeer(ip, port)
	if requester == nil {
		requester, err = n.dial(ip, port)
		if err != nil {
			log.Printf("p2p: getb connect to %s:%d: %v", ip, port, err)
			return
		}
	}

	b, err := n.store.LoadBlockFull(hash)
	if err != nil {
		log.Printf("p2p: getb: loading block %x: %v", hash, err)
		return
	}
	if b == nil {
		return
	}
	n.writeTo(requester, newFrame(CmdAddBlock, ledger.EncodeBlock(b)))
}

// handleBalance replies with the unspent-output balance of the requested
// address.
func (n *Network) handleBalance(payload []byte) {
	const addrLen = ledger.AddressSize
	if len(payload) < addrLen+1 || payload[addrLen] != ',' {
		log.Printf("p2p: blnc: malformed payload (%d bytes)", len(payload))
		return
	}
	var address [ledger.AddressSize]byte
	copy(address[:], payload[:addrLen])
	addrStr := string(payload[addrLen+1:])

	ip, port, err := parseAddr(addrStr)
	if err != nil {
		log.Printf("p2p: blnc: %v", err)
		return
	}
	requester := n.findPeer(ip, port)
	if requester == nil {
		return
	}

	balance, err := n.store.Balance(address)
	if err != nil {
		log.Printf("p2p: blnc: computing balance: %v", err)
		return
	}

	var amountBuf [8]byte
	binary.LittleEndian.PutUint64(amountBuf[:], uint64(balance))
	cmd := padCommand(CmdBalance)
	out := append(append([]byte{}, cmd[:]...), amountBuf[:]...)
	n.writeTo(requester, newFrame(CmdResponse, out))
}

// handleValidate replies with whether the given transaction bytes
// represent a valid transaction.
func (n *Network) handleValidate(payload []byte) {
	idx := bytes.LastIndexByte(payload, ',')
	if idx < 0 {
		log.Printf("p2p: vldt: malformed payload (%d bytes)", len(payload))
		return
	}
	txBytes, addrStr := payload[:idx], string(payload[idx+1:])

	ip, port, err := parseAddr(addrStr)
	if err != nil {
		log.Printf("p2p: vldt: %v", err)
		return
	}
	requester := n.findPeer(ip, port)
	if requester == nil {
		return
	}

	var valid int32
	if tx, _, err := ledger.DecodeTransaction(txBytes); err == nil && tx.Verify(n.resolveOutputAddress) {
		valid = 1
	}

	var validBuf [4]byte
	binary.LittleEndian.PutUint32(validBuf[:], uint32(valid))
	cmd := padCommand(CmdValidate)
	out := append(append([]byte{}, cmd[:]...), validBuf[:]...)
	n.writeTo(requester, newFrame(CmdResponse, out))
}
