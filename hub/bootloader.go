package hub

import (
	"context"
	"fmt"

	"github.com/blackdog70/SimpleDude/shellrun"
)

// avrdudeCmd is the fixed avrdude invocation prefix used by
// FlashBootloader/UpdateFuses: USBasp programmer, m168p target.
const avrdudeCmd = "avrdude -c USBasp -p m168p"

// CompileBootloader runs make for env/address/workdir. The node's 16-bit
// address is split into SN_MAJOR/SN_MINOR bytes baked into the optiboot
// image as its serial number.
func (h *Hub) CompileBootloader(ctx context.Context, makeCmd, env string, address uint16, workdir string) error {
	cmd := fmt.Sprintf("%s ENV=%s BAUD_RATE=38400 LED=D2 LED_START_FLASHES=5 SN_MAJOR=%d SN_MINOR=%d pro8",
		makeCmd, env, address/0xff, address%0xff)
	return h.runShell(ctx, cmd, workdir)
}

// FlashBootloader writes bootloaderPath onto the currently attached
// programmer via avrdude.
func (h *Hub) FlashBootloader(ctx context.Context, bootloaderPath string) error {
	cmd := fmt.Sprintf("%s -u -U flash:w:%q:i -vv", avrdudeCmd, bootloaderPath)
	return h.runShell(ctx, cmd, "")
}

// UpdateFuses writes the low/high/extended fuse bytes via avrdude.
func (h *Hub) UpdateFuses(ctx context.Context, low, high, extend byte) error {
	cmd := fmt.Sprintf("%s -U lfuse:w:0x%02x:m -U hfuse:w:0x%02x:m -U efuse:w:0x%02x:m",
		avrdudeCmd, low, high, extend)
	return h.runShell(ctx, cmd, "")
}

// runShell drives a shellrun.Run session to completion, relaying each
// line to h.log at Info level as it arrives.
func (h *Hub) runShell(ctx context.Context, cmd, workdir string) error {
	stdout, stderr, done := shellrun.Run(ctx, cmd, workdir)
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			h.log.Infof("shell: %s", line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			h.log.Infof("shell[stderr]: %s", line)
		}
	}
	return <-done
}
