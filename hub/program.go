package hub

import (
	"context"
	"fmt"
	"os"

	"github.com/blackdog70/SimpleDude/busengine"
	"github.com/blackdog70/SimpleDude/stk500"
)

// Program flashes hexPath onto target's node over an exclusive STK500v1
// session: it pauses the node's port's normal bus traffic for the
// duration and resumes it unconditionally afterward.
func (h *Hub) Program(ctx context.Context, target, hexPath string) error {
	port, err := h.portFor(target)
	if err != nil {
		return err
	}
	image, err := loadHexFile(hexPath)
	if err != nil {
		return err
	}

	conn, release, err := port.BeginSession(ctx)
	if err != nil {
		return fmt.Errorf("hub: program %s: %w", target, err)
	}
	defer release()

	prog := stk500.New(conn, 0)
	if err := prog.Program(image); err != nil {
		return fmt.Errorf("hub: program %s: %w", target, err)
	}
	return nil
}

// Verify re-reads target's flash over an exclusive STK500v1 session and
// compares it against hexPath.
func (h *Hub) Verify(ctx context.Context, target, hexPath string) error {
	port, err := h.portFor(target)
	if err != nil {
		return err
	}
	image, err := loadHexFile(hexPath)
	if err != nil {
		return err
	}

	conn, release, err := port.BeginSession(ctx)
	if err != nil {
		return fmt.Errorf("hub: verify %s: %w", target, err)
	}
	defer release()

	prog := stk500.New(conn, 0)
	if err := prog.Verify(image); err != nil {
		return fmt.Errorf("hub: verify %s: %w", target, err)
	}
	return nil
}

// GetInfo reads target's bootloader/hardware/signature/fuse information
// over an exclusive STK500v1 session.
func (h *Hub) GetInfo(ctx context.Context, target string) (stk500.Info, error) {
	port, err := h.portFor(target)
	if err != nil {
		return stk500.Info{}, err
	}

	conn, release, err := port.BeginSession(ctx)
	if err != nil {
		return stk500.Info{}, fmt.Errorf("hub: info %s: %w", target, err)
	}
	defer release()

	prog := stk500.New(conn, 0)
	return prog.GetInfo()
}

func loadHexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hub: open hex file %s: %w", path, err)
	}
	defer f.Close()
	return stk500.LoadHex(f)
}

func (h *Hub) portFor(target string) (*busengine.Port, error) {
	node, err := h.resolve(target)
	if err != nil {
		return nil, err
	}
	port, ok := h.ports[node.Bus]
	if !ok {
		return nil, fmt.Errorf("hub: node %s has no open port", node.Name)
	}
	return port, nil
}
