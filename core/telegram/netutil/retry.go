// Package netutil classifies transport errors from Bot API calls.
package netutil

import (
	"errors"
	"net"
	"syscall"
)

// DialFailed reports whether err happened before the request was written,
// so repeating it cannot deliver a message twice.
func DialFailed(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
