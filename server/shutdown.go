/******************************************************************************
 *
 *  Description :
 *
 *  Graceful shutdown of the TCP accept loop and the presence it owns.
 *
 *****************************************************************************/

package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
)

// shutdownGrace bounds how long in-flight sessions get to flush and
// deregister presence before the process forces socket close
// (spec.md §5).
const shutdownGrace = 5 * time.Second

func signalHandler() <-chan bool {
	stop := make(chan bool)

	signchan := make(chan os.Signal, 1)
	signal.Notify(signchan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-signchan
		log.Printf("signal received: '%s', shutting down", sig)
		stop <- true
	}()

	return stop
}

// listenAndServe accepts TCP connections on addr (bounded to maxConns
// concurrent by netutil.LimitListener) until stop fires, then closes the
// listener, lets the Fabric deregister every LocalPresence entry (waiting
// at most shutdownGrace for it), and returns once the accept loop has
// exited. Sessions still open at that point are not waited for.
func listenAndServe(addr string, maxConns int, fabric *Fabric, accept func(net.Conn)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	limited := netutil.LimitListener(tcpGracefulListener{ln.(*net.TCPListener)}, maxConns)

	stop := signalHandler()
	accepting := make(chan struct{})

	go func() {
		defer close(accepting)
		for {
			conn, err := limited.Accept()
			if err != nil {
				return
			}
			go accept(conn)
		}
	}()

	<-stop
	limited.Close()

	fabricDone := make(chan bool)
	go func() {
		fabric.shutdown <- fabricDone
	}()

	select {
	case <-fabricDone:
	case <-time.After(shutdownGrace):
		log.Printf("shutdown: fabric did not finish draining within %s, forcing exit", shutdownGrace)
	}

	<-accepting
	return nil
}

// tcpGracefulListener is grounded on the teacher's own copy of
// net/http's tcpKeepAliveListener, kept to retain explicit control over
// TCPListener.Close().
type tcpGracefulListener struct {
	*net.TCPListener
}

func (ln tcpGracefulListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
