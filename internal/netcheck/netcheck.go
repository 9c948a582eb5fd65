package netcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/zmap/zcrypto/tls"
	"github.com/zmap/zgrab2"
	"golang.org/x/sync/errgroup"
)

var ErrNoPeerCertificates = errors.New("no peer certificates")

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Result is the TLS view of one controller endpoint.
type Result struct {
	State        tls.ConnectionState
	Log          *zgrab2.TLSLog
	HandshakeLog *tls.ServerHandshake
}

// InspectTLS dials the endpoint and records the full TLS handshake,
// accepting whatever certificate the controller presents.
func InspectTLS(ctx context.Context, addrPort netip.AddrPort) (Result, error) {
	// dial TCP first
	conn, err := net.DialTimeout("tcp", addrPort.String(), dialTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("dial: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	var tlsFlags zgrab2.TLSFlags
	wrapper := zgrab2.GetDefaultTLSWrapper(&tlsFlags)
	target := &zgrab2.ScanTarget{
		IP:   addrPort.Addr().AsSlice(),
		Port: uint(addrPort.Port()),
	}

	// Upgrade the connection (context with timeout)
	connCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	tlsConn, err := wrapper(connCtx, target, conn)
	if err != nil {
		return Result{}, fmt.Errorf("zgrab2 GetDefaultTLS: %w", err)
	}

	err = tlsConn.Handshake()
	if err != nil {
		return Result{}, fmt.Errorf("zgrab2: tls Handshake: %w", err)
	}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return Result{}, ErrNoPeerCertificates
	}

	return Result{
		State:        state,
		Log:          tlsConn.GetLog(),
		HandshakeLog: tlsConn.GetHandshakeLog(),
	}, nil
}

// Check is the preflight outcome for one target.
type Check struct {
	Target    string
	Addr      string
	Reachable bool
	Subject   string
	NotAfter  time.Time
	Err       string
}

// Preflight inspects every controller endpoint concurrently, at most
// limit dials in flight. The result order matches the target order.
func Preflight(ctx context.Context, targets []string, port uint16, limit int) []Check {
	if limit <= 0 {
		limit = 4
	}

	checks := make([]Check, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, target := range targets {
		g.Go(func() error {
			checks[i] = checkOne(gctx, target, port)
			return nil
		})
	}
	_ = g.Wait() // goroutines do not return an error

	return checks
}

func checkOne(ctx context.Context, target string, port uint16) Check {
	check := Check{Target: target}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", target)
	if err != nil || len(addrs) == 0 {
		check.Err = fmt.Sprintf("resolve: %v", err)
		return check
	}

	addrPort := netip.AddrPortFrom(addrs[0].Unmap(), port)
	check.Addr = addrPort.String()

	result, err := InspectTLS(ctx, addrPort)
	if err != nil {
		check.Err = err.Error()
		return check
	}

	check.Reachable = true
	leaf := result.State.PeerCertificates[0]
	check.Subject = leaf.Subject.CommonName
	check.NotAfter = leaf.NotAfter
	return check
}
