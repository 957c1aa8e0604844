package p2p

import (
	"bytes"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"

	"github.com/kilimba/chainode/ledger"
	"github.com/kilimba/chainode/store"
)

func TestFrameRoundTrip(t *testing.T) {
	f := newFrame(CmdAddTx, []byte("hello"))
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Command != CmdAddTx || !bytes.Equal(got.Payload, []byte("hello")) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestParseAddr(t *testing.T) {
	ip, port, err := parseAddr("127.0.0.1:9001")
	if err != nil || ip != "127.0.0.1" || port != 9001 {
		t.Fatalf("parseAddr = %q, %d, %v", ip, port, err)
	}
	if _, _, err := parseAddr("not-an-address"); err == nil {
		t.Fatalf("expected error for malformed address")
	}
}

func newTestNetwork(t *testing.T) (*Network, *store.Store, chan *ledger.Transaction, chan *ledger.Block) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "chain.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	newTx := make(chan *ledger.Transaction, 1)
	newBlock := make(chan *ledger.Block, 1)
	mined := make(chan *ledger.Block, 1)
	n := New(s, 9001, newTx, newBlock, mined)
	return n, s, newTx, newBlock
}

func TestHandleAddTxInsertsAndForwards(t *testing.T) {
	n, s, newTx, _ := newTestNetwork(t)

	tx := &ledger.Transaction{Timestamp: 1, Outputs: []ledger.TxOutput{{Amount: 10}}}
	tx.SetHash()

	n.handleAddTx(ledger.EncodeTransaction(tx))

	pending, err := s.PendingTransactions()
	if err != nil {
		t.Fatalf("PendingTransactions: %v", err)
	}
	if len(pending) != 1 || pending[0].Hash != tx.Hash {
		t.Fatalf("expected the transaction to be persisted as pending, got %+v", pending)
	}

	select {
	case got := <-newTx:
		if got.Hash != tx.Hash {
			t.Fatalf("forwarded wrong transaction")
		}
	default:
		t.Fatalf("expected transaction to be forwarded to the miner channel")
	}
}

func TestHandleAddTxRejectsDuplicates(t *testing.T) {
	n, s, _, _ := newTestNetwork(t)

	tx := &ledger.Transaction{Timestamp: 1, Outputs: []ledger.TxOutput{{Amount: 10}}}
	tx.SetHash()
	if err := s.InsertTransaction(tx); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	n.handleAddTx(ledger.EncodeTransaction(tx))

	pending, err := s.PendingTransactions()
	if err != nil {
		t.Fatalf("PendingTransactions: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected no duplicate insert, got %d pending transactions", len(pending))
	}
}

func TestHandleGetBlockRepliesToKnownPeer(t *testing.T) {
	n, s, _, _ := newTestNetwork(t)

	b := &ledger.Block{Target: ledger.MaxTarget(), Timestamp: 1}
	b.SetHashes()
	if err := s.InsertBlock(b); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	peer := &Peer{IP: "127.0.0.1", Port: 9002, Conn: serverConn}
	n.peers = append(n.peers, peer)

	payload := append(append([]byte{}, b.BlockHash[:]...), []byte(",127.0.0.1:9002")...)

	done := make(chan struct{})
	go func() {
		n.handleGetBlock(payload)
		close(done)
	}()

	f, err := ReadFrame(clientConn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	<-done
	if f.Command != CmdAddBlock {
		t.Fatalf("expected addb reply, got %q", f.Command)
	}
	got, err := ledger.DecodeBlock(f.Payload)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.BlockHash != b.BlockHash {
		t.Fatalf("replied with the wrong block")
	}
}

func TestHandleBalanceReplies(t *testing.T) {
	n, s, _, _ := newTestNetwork(t)

	var addr [ledger.AddressSize]byte
	addr[0] = 7
	tx := &ledger.Transaction{Timestamp: 1, Outputs: []ledger.TxOutput{{Amount: 42, Address: addr}}}
	tx.SetHash()
	b := &ledger.Block{Txs: []ledger.Transaction{*tx}, Target: ledger.MaxTarget(), Timestamp: 1}
	b.SetHashes()
	if err := s.InsertBlock(b); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	peer := &Peer{IP: "127.0.0.1", Port: 9003, Conn: serverConn}
	n.peers = append(n.peers, peer)

	payload := append(append([]byte{}, addr[:]...), []byte(",127.0.0.1:9003")...)

	done := make(chan struct{})
	go func() {
		n.handleBalance(payload)
		close(done)
	}()

	f, err := ReadFrame(clientConn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	<-done
	if f.Command != CmdResponse {
		t.Fatalf("expected resp, got %q", f.Command)
	}
	if trimCommand(f.Payload[:cmdSize]) != CmdBalance {
		t.Fatalf("expected echoed blnc code, got %q", trimCommand(f.Payload[:cmdSize]))
	}
	balance := int64(binary.LittleEndian.Uint64(f.Payload[cmdSize:]))
	if balance != 42 {
		t.Fatalf("balance = %d, want 42", balance)
	}
}

func TestHandleListPeersReplies(t *testing.T) {
	n, _, _, _ := newTestNetwork(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	requester := &Peer{IP: "127.0.0.1", Port: 9004, Conn: serverConn}
	n.peers = append(n.peers, requester, &Peer{IP: "10.0.0.5", Port: 9005})

	done := make(chan struct{})
	go func() {
		n.handleListPeers("127.0.0.1:9004")
		close(done)
	}()

	f, err := ReadFrame(clientConn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	<-done
	if f.Command != CmdResponse {
		t.Fatalf("expected resp, got %q", f.Command)
	}
	if trimCommand(f.Payload[:cmdSize]) != CmdListPeers {
		t.Fatalf("expected echoed lisp code, got %q", trimCommand(f.Payload[:cmdSize]))
	}
	list := string(f.Payload[cmdSize:])
	if !bytes.Contains([]byte(list), []byte("127.0.0.1:9004")) || !bytes.Contains([]byte(list), []byte("10.0.0.5:9005")) {
		t.Fatalf("expected both peers in list, got %q", list)
	}
}
