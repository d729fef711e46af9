// Package stk500 implements the STK500v1 bootloader protocol used to
// flash and verify an AVR node over the same RS-485 wire once a
// busengine.Port has paused ordinary bus traffic and handed over its raw
// connection (see busengine.Port.BeginSession).
package stk500

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Protocol bytes, per the STK500v1 wire protocol.
const (
	stkOK        = 0x10
	stkInSync    = 0x14
	crcEOP       = 0x20
	stkGetSync   = 0x30
	stkGetParam  = 0x41
	stkEnterProg = 0x50
	stkLeaveProg = 0x51
	stkLoadAddr  = 0x55
	stkUniversal = 0x56
	stkProgPage  = 0x64
	stkReadPage  = 0x74
	stkReadSign  = 0x75

	paramHardware = 0x80
	paramSWMajor  = 0x81
	paramSWMinor  = 0x82

	flashMemory = 0x46

	// pageSize is the number of data bytes per STK_PROG_PAGE/STK_READ_PAGE
	// transaction (64 words = 128 bytes on the optiboot-class bootloaders
	// this hub targets).
	pageSize = 128
)

// defaultRetry is the number of re-sync attempts a transaction allows
// before giving up on the session.
const defaultRetry = 9

// ErrOutOfSync is returned when a transaction's reply never starts with
// STK_INSYNC/ends with STK_OK after exhausting every retry.
var ErrOutOfSync = errors.New("stk500: device out of sync")

// perByteTurnaround is the half-duplex line-turnaround allowance waited
// per written byte before reading the reply; lineSettle is the fixed
// extra on top. Together: len(codes)*0.53ms + 1ms.
const (
	perByteTurnaround = 530 * time.Microsecond
	lineSettle        = time.Millisecond
)

// ErrVerifyMismatch is returned by Verify when flash contents differ
// from the image.
var ErrVerifyMismatch = errors.New("stk500: verification failed, flash does not match image")

// Info is the bootloader/device identification returned by GetInfo.
type Info struct {
	Hardware   byte
	SWMajor    byte
	SWMinor    byte
	Signature  [3]byte
	LFuse      byte
	HFuse      byte
	EFuse      byte
}

// Programmer drives one STK500v1 session over an already-paused, raw
// half-duplex connection (the Conn handed back by busengine.Port's
// BeginSession). It is not safe for concurrent use.
type Programmer struct {
	conn  io.ReadWriter
	retry int
}

// New wraps conn for one programming session. retry, if zero, defaults
// to nine re-sync attempts.
func New(conn io.ReadWriter, retry int) *Programmer {
	if retry <= 0 {
		retry = defaultRetry
	}
	return &Programmer{conn: conn, retry: retry}
}

// transact writes codes, then reads exactly 2+nreply bytes back,
// expecting STK_INSYNC ... STK_OK framing. On a short read or a bad
// frame it retries the whole write, up to p.retry extra attempts.
func (p *Programmer) transact(codes []byte, nreply int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retry; attempt++ {
		if _, err := p.conn.Write(codes); err != nil {
			return nil, fmt.Errorf("stk500: write: %w", err)
		}
		time.Sleep(time.Duration(len(codes))*perByteTurnaround + lineSettle)
		reply := make([]byte, nreply+2)
		if _, err := io.ReadFull(p.conn, reply); err != nil {
			lastErr = err
			continue
		}
		if reply[0] != stkInSync || reply[len(reply)-1] != stkOK {
			lastErr = ErrOutOfSync
			continue
		}
		return reply[1 : len(reply)-1], nil
	}
	if lastErr == nil {
		lastErr = ErrOutOfSync
	}
	return nil, lastErr
}

// Sync performs the three-shot GET_SYNC handshake that opens every
// session.
func (p *Programmer) Sync() error {
	for i := 0; i < 3; i++ {
		if _, err := p.transact([]byte{stkGetSync, crcEOP}, 0); err != nil {
			return err
		}
	}
	return nil
}

func (p *Programmer) enterProgMode() error {
	_, err := p.transact([]byte{stkEnterProg, crcEOP}, 0)
	return err
}

func (p *Programmer) leaveProgMode() error {
	_, err := p.transact([]byte{stkLeaveProg, crcEOP}, 0)
	return err
}

func (p *Programmer) loadAddress(wordAddr uint16) error {
	lo := byte(wordAddr & 0xFF)
	hi := byte(wordAddr >> 8)
	_, err := p.transact([]byte{stkLoadAddr, lo, hi, crcEOP}, 0)
	return err
}

// GetInfo syncs, enters programming mode, and reads back hardware/
// bootloader versions, device signature and the fuse bytes, then
// leaves programming mode.
func (p *Programmer) GetInfo() (Info, error) {
	var info Info
	if err := p.Sync(); err != nil {
		return info, err
	}
	hw, err := p.transact([]byte{stkGetParam, paramHardware, crcEOP}, 1)
	if err != nil {
		return info, err
	}
	info.Hardware = hw[0]
	major, err := p.transact([]byte{stkGetParam, paramSWMajor, crcEOP}, 1)
	if err != nil {
		return info, err
	}
	info.SWMajor = major[0]
	minor, err := p.transact([]byte{stkGetParam, paramSWMinor, crcEOP}, 1)
	if err != nil {
		return info, err
	}
	info.SWMinor = minor[0]

	if err := p.enterProgMode(); err != nil {
		return info, err
	}
	sig, err := p.transact([]byte{stkReadSign, crcEOP}, 3)
	if err != nil {
		return info, err
	}
	copy(info.Signature[:], sig)

	lfuse, err := p.transact([]byte{stkUniversal, 0x50, 0x00, 0x00, 0x00, crcEOP}, 1)
	if err != nil {
		return info, err
	}
	info.LFuse = lfuse[0]
	hfuse, err := p.transact([]byte{stkUniversal, 0x58, 0x08, 0x00, 0x00, crcEOP}, 1)
	if err != nil {
		return info, err
	}
	info.HFuse = hfuse[0]
	efuse, err := p.transact([]byte{stkUniversal, 0x50, 0x08, 0x00, 0x00, crcEOP}, 1)
	if err != nil {
		return info, err
	}
	info.EFuse = efuse[0]

	return info, p.leaveProgMode()
}

// Program syncs, enters programming mode, and writes image a page
// (pageSize bytes) at a time, the load address advancing in 64-word
// (128-byte) increments, then leaves programming mode.
func (p *Programmer) Program(image []byte) error {
	if err := p.Sync(); err != nil {
		return err
	}
	if err := p.enterProgMode(); err != nil {
		return err
	}
	defer p.leaveProgMode()

	wordAddr := uint16(0)
	for off := 0; off < len(image); off += pageSize {
		if err := p.loadAddress(wordAddr); err != nil {
			return err
		}
		end := off + pageSize
		if end > len(image) {
			end = len(image)
		}
		page := image[off:end]
		codes := make([]byte, 0, 4+len(page)+1)
		codes = append(codes, stkProgPage, 0, byte(len(page)), flashMemory)
		codes = append(codes, page...)
		codes = append(codes, crcEOP)
		if _, err := p.transact(codes, 0); err != nil {
			return err
		}
		wordAddr += pageSize / 2
	}
	return nil
}

// Verify syncs, enters programming mode, and compares image against
// what STK_READ_PAGE reports for each page, stopping at the first
// mismatch.
func (p *Programmer) Verify(image []byte) error {
	if err := p.Sync(); err != nil {
		return err
	}
	if err := p.enterProgMode(); err != nil {
		return err
	}
	defer p.leaveProgMode()

	wordAddr := uint16(0)
	for off := 0; off < len(image); off += pageSize {
		if err := p.loadAddress(wordAddr); err != nil {
			return err
		}
		end := off + pageSize
		if end > len(image) {
			end = len(image)
		}
		want := image[off:end]
		got, err := p.transact([]byte{stkReadPage, 0, pageSize, flashMemory, crcEOP}, pageSize)
		if err != nil {
			return err
		}
		if string(got[:len(want)]) != string(want) {
			return ErrVerifyMismatch
		}
		wordAddr += pageSize / 2
	}
	return nil
}
