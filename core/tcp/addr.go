package tcp

import (
	"fmt"
	stdnet "net"
	"strconv"

	"golang.org/x/sys/unix"
)

// resolveListenAddr turns a "host:port" string into a unix.Sockaddr and
// the socket family to create, using the stdlib resolver (no core
// component is built on net.Listener itself — only its address parsing).
func resolveListenAddr(addr string) (unix.Sockaddr, int, error) {
	host, portStr, err := stdnet.SplitHostPort(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("tcp: invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, 0, fmt.Errorf("tcp: invalid port %q: %w", portStr, err)
	}

	if host == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}

	ip := stdnet.ParseIP(host)
	if ip == nil {
		ips, err := stdnet.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, 0, fmt.Errorf("tcp: cannot resolve host %q", host)
		}
		ip = ips[0]
	}
	if ip4 := ip.To4(); ip4 != nil {
		var a [4]byte
		copy(a[:], ip4)
		return &unix.SockaddrInet4{Port: port, Addr: a}, unix.AF_INET, nil
	}
	var a [16]byte
	copy(a[:], ip.To16())
	return &unix.SockaddrInet6{Port: port, Addr: a}, unix.AF_INET6, nil
}

// PeerAddrString renders a unix.Sockaddr produced by Accept as a
// "host:port" string for logging and TcpConnection.PeerAddr.
func PeerAddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return stdnet.JoinHostPort(stdnet.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return stdnet.JoinHostPort(stdnet.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return "unknown"
	}
}
