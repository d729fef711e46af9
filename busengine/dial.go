package busengine

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

// pollInterval bounds how long a single Read on the dialed port blocks,
// so readLoop's pause check (see reader.go) runs even on an idle bus.
const pollInterval = 250 * time.Millisecond

// Dial opens name as an RS-485 serial port in raw mode at baud, ready to
// be wrapped in a Port via NewPort. Every failure is wrapped in
// ErrPortOpenFailed so callers can treat a missing bus as fatal.
func Dial(name string, baud int) (Conn, error) {
	opts := serial.NewOptions().SetReadTimeout(pollInterval)
	port, err := serial.Open(name, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPortOpenFailed, name, err)
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: raw mode %s: %v", ErrPortOpenFailed, name, err)
	}
	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: attrs %s: %v", ErrPortOpenFailed, name, err)
	}
	attrs.SetCustomSpeed(uint32(baud))
	if err := port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set attrs %s: %v", ErrPortOpenFailed, name, err)
	}
	// Half-duplex line turnaround is handled in the tty driver where the
	// adapter supports it; USB dongles that auto-toggle DE reject the
	// ioctl, so a failure here is not fatal.
	if cfg, err := port.GetRS485(); err == nil {
		cfg.Flags |= serial.RS485Enabled | serial.RS485RTSOnSend
		cfg.Flags &^= serial.RS485RTSAfterSend
		_ = port.SetRS485(cfg)
	}
	return port, nil
}
