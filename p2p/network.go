package p2p

import (
	"crypto/ed25519"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/kilimba/chainode/ledger"
	"github.com/kilimba/chainode/store"
)

const defaultHost = "127.0.0.1"

// Network owns the listening socket, the live peer list, and all
// datastore writes driven by network input. Every method that touches
// peers or the store is called only from the goroutine running Start.
type Network struct {
	store      *store.Store
	selfIP     string
	selfPort   int
	listener   net.Listener
	peers      []*Peer
	inbound    chan *Frame
	done       chan struct{}
	newTx      chan<- *ledger.Transaction
	newBlock   chan<- *ledger.Block
	minedBlock <-chan *ledger.Block
}

// New builds a Network bound to port. newTx/newBlock are the miner's
// pre-emption inputs (sent to, never read from, here); minedBlock
// delivers blocks this node successfully mines, for broadcast.
func New(s *store.Store, port int, newTx chan<- *ledger.Transaction, newBlock chan<- *ledger.Block, minedBlock <-chan *ledger.Block) *Network {
	return &Network{
		store:      s,
		selfIP:     defaultHost,
		selfPort:   port,
		inbound:    make(chan *Frame, 64),
		done:       make(chan struct{}),
		newTx:      newTx,
		newBlock:   newBlock,
		minedBlock: minedBlock,
	}
}

// Start binds the listening socket, bootstraps from persisted peer
// history, and runs the event loop until quit is closed. It returns only
// on quit or on a fatal startup failure (bind error).
func (n *Network) Start(quit <-chan struct{}) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.selfIP, n.selfPort))
	if err != nil {
		return fmt.Errorf("p2p: listen on %s:%d: %w", n.selfIP, n.selfPort, err)
	}
	n.listener = ln
	defer ln.Close()

	n.bootstrap()

	go n.acceptLoop()
	defer close(n.done)

	for {
		select {
		case <-quit:
			n.broadcastRemp()
			return nil
		case b := <-n.minedBlock:
			n.broadcastAddBlock(b)
		case f := <-n.inbound:
			n.dispatch(f)
		}
	}
}

func (n *Network) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		go n.readLoop(conn)
	}
}

// readLoop decodes successive frames from conn and forwards them to the
// dispatch loop until the socket errors (closed or malformed frame).
// One goroutine per connection keeps per-peer frames in arrival order.
func (n *Network) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		f, err := ReadFrame(conn)
		if err != nil {
			return
		}
		select {
		case n.inbound <- f:
		case <-n.done:
			return
		}
	}
}

// bootstrap connects out to every persisted peer (ordered most-recently
// seen first) whose port differs from ours, announcing ourselves and
// requesting their peer list.
func (n *Network) bootstrap() {
	history, err := n.store.ListPeers()
	if err != nil {
		log.Printf("p2p: loading peer history: %v", err)
		return
	}
	for _, rec := range history {
		if rec.Port == n.selfPort {
			continue
		}
		peer, err := n.dial(rec.IP, rec.Port)
		if err != nil {
			log.Printf("p2p: bootstrap connect to %s:%d: %v", rec.IP, rec.Port, err)
			continue
		}
		n.writeTo(peer, newFrame(CmdAddPeer, []byte(n.selfAddr())))
		n.writeTo(peer, newFrame(CmdListPeers, []byte(n.selfAddr())))
	}
}

// dial connects out to ip:port and records the resulting Peer, upserting
// it into the datastore and, if not already known, appending it to the
// live list. It is the one place a peer socket is established; callers
// decide separately whether to announce anything over it.
func (n *Network) dial(ip string, port int) (*Peer, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	if err := n.store.UpsertPeer(store.PeerRecord{IP: ip, Port: port, Timestamp: now}); err != nil && err != store.ErrValueExists {
		log.Printf("p2p: upserting peer %s:%d: %v", ip, port, err)
	}

	peer := n.findPeer(ip, port)
	if peer == nil {
		peer = &Peer{IP: ip, Port: port, Timestamp: now, Conn: conn}
		n.peers = append(n.peers, peer)
	} else {
		if peer.Conn != nil {
			peer.Conn.Close()
		}
		peer.Conn = conn
		peer.Timestamp = now
	}
	go n.readLoop(conn)
	return peer, nil
}

func (n *Network) selfAddr() string {
	return fmt.Sprintf("%s:%d", n.selfIP, n.selfPort)
}

func (n *Network) findPeer(ip string, port int) *Peer {
	for _, p := range n.peers {
		if p.IP == ip && p.Port == port {
			return p
		}
	}
	return nil
}

func (n *Network) removePeer(ip string, port int) {
	for i, p := range n.peers {
		if p.IP == ip && p.Port == port {
			if p.Conn != nil {
				p.Conn.Close()
			}
			n.peers = append(n.peers[:i], n.peers[i+1:]...)
			return
		}
	}
}

// writeTo writes f to peer's connection. Write failures are logged and
// the peer is kept; removal is driven only by remp or read error, never
// by a write failure.
func (n *Network) writeTo(peer *Peer, f *Frame) {
	if peer.Conn == nil {
		return
	}
	if err := WriteFrame(peer.Conn, f); err != nil {
		log.Printf("p2p: writing %s to %s: %v", f.Command, peer.Addr(), err)
	}
}

func (n *Network) broadcastRemp() {
	f := newFrame(CmdRemovePeer, []byte(n.selfAddr()))
	for _, p := range n.peers {
		n.writeTo(p, f)
	}
}

func (n *Network) broadcastAddBlock(b *ledger.Block) {
	f := newFrame(CmdAddBlock, ledger.EncodeBlock(b))
	for _, p := range n.peers {
		n.writeTo(p, f)
	}
}

// trySendTx forwards tx to the miner as a non-blocking pre-emption
// signal: the datastore (not the channel) is the source of truth, so a
// full channel is dropped rather than blocking the network loop.
func (n *Network) trySendTx(tx *ledger.Transaction) {
	select {
	case n.newTx <- tx:
	default:
	}
}

func (n *Network) trySendBlock(b *ledger.Block) {
	select {
	case n.newBlock <- b:
	default:
	}
}

// resolveOutputAddress adapts store.OutputAddress to the signature
// ledger.Transaction.Verify/ledger.Block.Verify expect.
func (n *Network) resolveOutputAddress(srcHash [ledger.HashSize]byte, idx int64) (ed25519.PublicKey, bool) {
	addr, ok, err := n.store.OutputAddress(srcHash, idx)
	if err != nil || !ok {
		return nil, false
	}
	return ed25519.PublicKey(addr[:]), true
}
