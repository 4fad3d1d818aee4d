package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"
)

// udpReadSize fits the largest IPv4 datagram.
const udpReadSize = 65536

// UDPSource receives a stream sent to a unicast or multicast address.
type UDPSource struct {
	log   *slog.Logger
	addr  string
	iface string

	// onListen is called with the bound address once the socket is open.
	onListen func(net.Addr)
}

// NewUDPSource creates a UDPSource for addr (host:port). When the host is
// a multicast group it is joined on the named interface, or on the
// system default when iface is empty. If log is nil, slog.Default() is
// used.
func NewUDPSource(addr, iface string, log *slog.Logger) *UDPSource {
	if log == nil {
		log = slog.Default()
	}
	return &UDPSource{
		log:   log.With("component", "udp-source"),
		addr:  addr,
		iface: iface,
	}
}

// Run receives datagrams into w until ctx is cancelled.
func (s *UDPSource) Run(ctx context.Context, w io.Writer) error {
	ua, err := net.ResolveUDPAddr("udp4", s.addr)
	if err != nil {
		return fmt.Errorf("ingest: resolve %s: %w", s.addr, err)
	}

	listen := s.addr
	group := ua.IP.To4()
	multicast := group != nil && group.IsMulticast()
	if multicast {
		listen = net.JoinHostPort("0.0.0.0", strconv.Itoa(ua.Port))
	}

	conn, err := net.ListenPacket("udp4", listen)
	if err != nil {
		return fmt.Errorf("ingest: listen on %s: %w", listen, err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if multicast {
		var ifi *net.Interface
		if s.iface != "" {
			if ifi, err = net.InterfaceByName(s.iface); err != nil {
				return fmt.Errorf("ingest: interface %s: %w", s.iface, err)
			}
		}
		if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
			return fmt.Errorf("ingest: join %s: %w", group, err)
		}
		defer pc.LeaveGroup(ifi, &net.UDPAddr{IP: group})
		if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
			s.log.Debug("destination control messages unavailable", "error", err)
		}
	}
	s.log.Info("listening", "addr", conn.LocalAddr(), "multicast", multicast)
	if s.onListen != nil {
		s.onListen(conn.LocalAddr())
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	rec, _ := w.(AddrRecorder)
	var lastSrc string
	buf := make([]byte, udpReadSize)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingest: receive: %w", err)
		}
		// Other groups joined on the same port by other sockets.
		if multicast && cm != nil && cm.Dst != nil && !cm.Dst.Equal(group) {
			continue
		}
		if rec != nil && src != nil && src.String() != lastSrc {
			lastSrc = src.String()
			rec.SetRemoteAddr(lastSrc)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
}
