package p2p

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Peer is a remote node, addressed by (IP, Port). Conn is the outbound
// TCP connection this node dialed to reach it; it is established only by
// Network.dial (bootstrap, the addp handler, or a getb request from an
// unknown peer), never taken over from an accepted inbound socket.
type Peer struct {
	IP        string
	Port      int
	Timestamp int64
	Conn      net.Conn
}

// Addr renders the peer as "ip:port", the wire format used throughout
// the protocol.
func (p *Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// parseAddr parses "ip:port" as used in addp/remp/lisp/getb/blnc payloads.
func parseAddr(s string) (ip string, port int, err error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("p2p: malformed address %q", s)
	}
	ip = s[:idx]
	port, err = strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("p2p: malformed port in address %q: %w", s, err)
	}
	return ip, port, nil
}
