//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/logger"
)

// Dial implements Dialer by connecting an RFCOMM socket to the device.
func (d *RFCOMMDialer) Dial(ctx context.Context, device *fall.RemoteDevice) (Stream, error) {
	addr, err := parseBDAddr(device.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fall.ErrConnectFailed, err)
	}

	channel := d.channel(device)

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, classifyErrno("socket", err)
	}

	logger.DebugKV(ctx, "Dialing RFCOMM", "address", device.Address, "channel", channel)

	// Connect blocks in the kernel; shutting the socket down is the only way
	// to abandon it when ctx is canceled.
	done := make(chan error, 1)

	go func() {
		done <- unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		<-done

		err = ctx.Err()
	}

	if err != nil {
		_ = unix.Close(fd)
		return nil, classifyErrno("connect", err)
	}

	// A non-blocking descriptor makes os.File pollable, so read deadlines
	// work and Close interrupts a pending Read.
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, classifyErrno("set non-blocking", err)
	}

	return os.NewFile(uintptr(fd), "rfcomm:"+device.Address), nil
}

// classifyErrno maps socket errors onto link sentinels.
func classifyErrno(op string, err error) error {
	switch {
	case errors.Is(err, unix.EAFNOSUPPORT),
		errors.Is(err, unix.EPROTONOSUPPORT),
		errors.Is(err, unix.ENODEV),
		errors.Is(err, unix.ENETDOWN),
		errors.Is(err, unix.EADDRNOTAVAIL):
		return fmt.Errorf("%w: %s: %w", fall.ErrLinkUnavailable, op, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s: %w", fall.ErrPermissionDenied, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", fall.ErrConnectFailed, op, err)
	}
}
