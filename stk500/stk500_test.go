package stk500

import (
	"bytes"
	"strings"
	"testing"
)

// fakeDevice is an in-memory io.ReadWriter standing in for a paused bus
// connection: it replies to whatever the last Write sent as soon as a
// matching responder is installed, so tests can script a session without
// a real AVR on the other end.
type fakeDevice struct {
	reply func(cmd []byte) []byte
	buf   bytes.Buffer
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	f.buf.Reset()
	f.buf.Write(f.reply(p))
	return len(p), nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	return f.buf.Read(p)
}

func insync(payload ...byte) []byte {
	return append([]byte{stkInSync}, append(payload, stkOK)...)
}

func TestSyncSucceedsFirstTry(t *testing.T) {
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		if cmd[0] != stkGetSync {
			t.Fatalf("unexpected command %v", cmd)
		}
		return insync()
	}}
	p := New(dev, 0)
	if err := p.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestTransactRetriesOnBadFrame(t *testing.T) {
	calls := 0
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		calls++
		if calls < 3 {
			return []byte{0x00, 0x00}
		}
		return insync()
	}}
	p := New(dev, 5)
	if err := p.Sync(); err != nil {
		t.Fatalf("Sync after retries: %v", err)
	}
	if calls < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", calls)
	}
}

func TestTransactGivesUpAfterRetryBudget(t *testing.T) {
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		return []byte{0x00, 0x00}
	}}
	p := New(dev, 2)
	if err := p.Sync(); err != ErrOutOfSync {
		t.Fatalf("got %v, want ErrOutOfSync", err)
	}
}

func TestGetInfoParsesEachField(t *testing.T) {
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		switch {
		case cmd[0] == stkGetSync:
			return insync()
		case cmd[0] == stkGetParam && cmd[1] == paramHardware:
			return insync(0x02)
		case cmd[0] == stkGetParam && cmd[1] == paramSWMajor:
			return insync(0x03)
		case cmd[0] == stkGetParam && cmd[1] == paramSWMinor:
			return insync(0x09)
		case cmd[0] == stkEnterProg:
			return insync()
		case cmd[0] == stkReadSign:
			return insync(0x1E, 0x94, 0x0B)
		case cmd[0] == stkUniversal && cmd[1] == 0x50 && cmd[2] == 0x00:
			return insync(0xFF)
		case cmd[0] == stkUniversal && cmd[1] == 0x58:
			return insync(0xDE)
		case cmd[0] == stkUniversal && cmd[1] == 0x50 && cmd[2] == 0x08:
			return insync(0x05)
		case cmd[0] == stkLeaveProg:
			return insync()
		}
		t.Fatalf("unexpected command %v", cmd)
		return nil
	}}
	p := New(dev, 0)
	info, err := p.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Hardware != 0x02 || info.SWMajor != 0x03 || info.SWMinor != 0x09 {
		t.Fatalf("got %+v", info)
	}
	if info.Signature != [3]byte{0x1E, 0x94, 0x0B} {
		t.Fatalf("got signature %v", info.Signature)
	}
	if info.LFuse != 0xFF || info.HFuse != 0xDE || info.EFuse != 0x05 {
		t.Fatalf("got fuses %+v", info)
	}
}

func TestProgramWritesEveryPage(t *testing.T) {
	var pagesWritten [][]byte
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		switch cmd[0] {
		case stkGetSync, stkEnterProg, stkLeaveProg, stkLoadAddr:
			return insync()
		case stkProgPage:
			size := int(cmd[2])
			pagesWritten = append(pagesWritten, append([]byte(nil), cmd[4:4+size]...))
			return insync()
		}
		t.Fatalf("unexpected command %v", cmd)
		return nil
	}}
	image := bytes.Repeat([]byte{0xAB}, pageSize+17)
	p := New(dev, 0)
	if err := p.Program(image); err != nil {
		t.Fatalf("Program: %v", err)
	}
	if len(pagesWritten) != 2 {
		t.Fatalf("got %d pages, want 2", len(pagesWritten))
	}
	if len(pagesWritten[0]) != pageSize || len(pagesWritten[1]) != 17 {
		t.Fatalf("got page sizes %d, %d", len(pagesWritten[0]), len(pagesWritten[1]))
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		switch cmd[0] {
		case stkGetSync, stkEnterProg, stkLeaveProg, stkLoadAddr:
			return insync()
		case stkReadPage:
			return insync(bytes.Repeat([]byte{0x00}, pageSize)...)
		}
		t.Fatalf("unexpected command %v", cmd)
		return nil
	}}
	image := bytes.Repeat([]byte{0xFF}, pageSize)
	p := New(dev, 0)
	if err := p.Verify(image); err != ErrVerifyMismatch {
		t.Fatalf("got %v, want ErrVerifyMismatch", err)
	}
}

func TestVerifyPassesOnMatch(t *testing.T) {
	image := bytes.Repeat([]byte{0x42}, pageSize)
	dev := &fakeDevice{reply: func(cmd []byte) []byte {
		switch cmd[0] {
		case stkGetSync, stkEnterProg, stkLeaveProg, stkLoadAddr:
			return insync()
		case stkReadPage:
			return insync(image...)
		}
		t.Fatalf("unexpected command %v", cmd)
		return nil
	}}
	p := New(dev, 0)
	if err := p.Verify(image); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestLoadHexAssemblesDataRecords(t *testing.T) {
	hexText := ":10000000000102030405060708090A0B0C0D0E0FB6\n" +
		":00000001FF\n"
	img, err := LoadHex(strings.NewReader(hexText))
	if err != nil {
		t.Fatalf("LoadHex: %v", err)
	}
	want := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	if !bytes.Equal(img, want) {
		t.Fatalf("got %v, want %v", img, want)
	}
}

func TestLoadHexRejectsMissingColon(t *testing.T) {
	if _, err := LoadHex(strings.NewReader("not a hex line\n")); err == nil {
		t.Fatal("want error for malformed line")
	}
}
