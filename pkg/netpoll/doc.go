// Package netpoll provides a readiness multiplexer and non-blocking TCP
// socket primitives on raw file descriptors.
//
// It is the minimum an event loop needs: register descriptors with a read
// and/or write interest, wait for readiness, and move bytes without
// blocking. The Linux implementation uses epoll and eventfd through
// golang.org/x/sys/unix. Other platforms report ErrUnsupported.
//
// Usage:
//
//	p, _ := netpoll.NewPoller()
//	lfd, addr, _ := netpoll.Listen("127.0.0.1", 6379)
//	_ = p.Add(lfd, netpoll.InterestRead)
//	for {
//		_, _ = p.Wait(100*time.Millisecond, func(ev netpoll.Event) { ... })
//	}
//
// Thread Safety:
//
// A Poller is used by one goroutine, except Wake which may be called from
// any goroutine to interrupt a blocked Wait.
package netpoll
