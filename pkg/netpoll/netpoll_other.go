//go:build !linux

package netpoll

import "time"

// Poller is unavailable on this platform.
type Poller struct{}

// NewPoller returns ErrUnsupported.
func NewPoller() (*Poller, error) { return nil, ErrUnsupported }

func (p *Poller) Add(int, Interest) error    { return ErrUnsupported }
func (p *Poller) Modify(int, Interest) error { return ErrUnsupported }
func (p *Poller) Remove(int) error           { return ErrUnsupported }
func (p *Poller) Wake() error                { return ErrUnsupported }
func (p *Poller) Close() error               { return ErrUnsupported }

func (p *Poller) Wait(time.Duration, func(Event)) (int, error) { return 0, ErrUnsupported }

func Listen(string, int) (int, string, error) { return -1, "", ErrUnsupported }
func Accept(int) (int, string, error)         { return -1, "", ErrUnsupported }
func Read(int, []byte) (int, error)           { return 0, ErrUnsupported }
func Write(int, []byte) (int, error)          { return 0, ErrUnsupported }
func Close(int) error                         { return ErrUnsupported }
