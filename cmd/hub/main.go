// Command hub runs the RS-485 field bus gateway: it loads a YAML
// node/bus topology, dials each configured serial port, and either
// serves the bus loop (with its HTTP control-plane façade) or performs a
// single ad-hoc operation.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/GoAethereal/cancel"

	"github.com/blackdog70/SimpleDude/busengine"
	"github.com/blackdog70/SimpleDude/config"
	"github.com/blackdog70/SimpleDude/hub"
	"github.com/blackdog70/SimpleDude/httpapi"
	"github.com/blackdog70/SimpleDude/logging"
	"github.com/blackdog70/SimpleDude/proto"
	"github.com/blackdog70/SimpleDude/registry"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile    = flag.String("configfile", "ms-config.yaml", "path to the bus/node YAML configuration")
		portsOverride = flag.String("ports", "", "comma-separated device paths, one per configured bus, in config order")
		httpAddr      = flag.String("http", "", "address to serve the HTTP façade on, e.g. :8080 (disabled if empty)")

		loop       = flag.Bool("loop", false, "run the hub")
		scan       = flag.Bool("scan", false, "issue MEM to every node")
		pushConfig = flag.Bool("config", false, "push each node's config block")

		setID    = flag.Bool("setid", false, "change a node's address (requires -node and -newid)")
		newID    = flag.Uint("newid", 0, "new net id for -setid")
		node     = flag.Uint("node", 0, "target node net id for -setid/-execute/-setstate/-info")
		execSpec = flag.String("execute", "", "ad-hoc command spec as YAML, sent to -node")

		program = flag.Bool("program", false, "flash the core firmware via STK500 (requires -node and -hex)")
		hexFile = flag.String("hex", "", "Intel HEX image path for -program/-verify")
		verify  = flag.Bool("verify", false, "verify flashed firmware against -hex (requires -node)")
		info    = flag.Bool("info", false, "read bootloader/hardware info from -node")

		makeCmd = flag.String("make", "", "compile the bootloader with this make invocation")
		env     = flag.String("env", "", "bootloader build environment for -make")
		address = flag.Uint("address", 0, "node address baked into the bootloader's serial number for -make")
		workdir = flag.String("workdir", "", "working directory for -make")

		boot = flag.String("boot", "", "flash a prebuilt bootloader image via avrdude")

		fuses = flag.String("fuses", "", `fuse bytes as "LO HI EXT" hex, e.g. "DE DC FA"`)

		setState = flag.String("setstate", "", "push RUN or STANDBY to -node")
	)
	flag.Parse()

	log := logging.New()

	buses, err := config.Load(*configFile)
	if err != nil {
		log.Criticalf("config: %v", err)
		return 1
	}
	if *portsOverride != "" {
		overrides := strings.Split(*portsOverride, ",")
		if len(overrides) != len(buses) {
			log.Criticalf("-ports lists %d devices, config has %d buses", len(overrides), len(buses))
			return 1
		}
		for i := range buses {
			buses[i].Port = overrides[i]
		}
	}

	var allNodes []registry.NodeConfig
	for _, b := range buses {
		allNodes = append(allNodes, b.Nodes...)
	}
	reg, err := registry.New(allNodes)
	if err != nil {
		log.Criticalf("registry: %v", err)
		return 1
	}

	conns := make(map[string]busengine.Conn, len(buses))
	for _, b := range buses {
		conn, err := busengine.Dial(b.Port, b.Baud)
		if err != nil {
			log.Criticalf("%v", err)
			closeAll(conns)
			return 1
		}
		conns[b.Port] = conn
	}

	h, err := hub.New(reg, conns, log)
	if err != nil {
		log.Criticalf("hub: %v", err)
		closeAll(conns)
		return 1
	}
	defer h.Close()

	ctx := cancel.New()
	defer ctx.Cancel()

	switch {
	case *loop:
		return runLoop(ctx, h, log, *httpAddr)
	case *scan:
		return oneShot(h.Scan(ctx), log)
	case *pushConfig:
		return oneShot(h.PushConfig(ctx), log)
	case *setID:
		return oneShot(h.SetID(ctx, uint16(*node), uint16(*newID)), log)
	case *execSpec != "":
		spec, err := proto.ParseAdHoc(*execSpec)
		if err != nil {
			log.Criticalf("-execute: %v", err)
			return 1
		}
		return oneShot(h.Send(ctx, strconv.FormatUint(uint64(*node), 10), spec), log)
	case *program:
		return oneShot(h.Program(context.Background(), strconv.FormatUint(uint64(*node), 10), *hexFile), log)
	case *verify:
		return oneShot(h.Verify(context.Background(), strconv.FormatUint(uint64(*node), 10), *hexFile), log)
	case *info:
		result, err := h.GetInfo(context.Background(), strconv.FormatUint(uint64(*node), 10))
		if err != nil {
			log.Criticalf("%v", err)
			return 1
		}
		fmt.Printf("%+v\n", result)
		return 0
	case *makeCmd != "":
		return oneShot(h.CompileBootloader(context.Background(), *makeCmd, *env, uint16(*address), *workdir), log)
	case *boot != "":
		return oneShot(h.FlashBootloader(context.Background(), *boot), log)
	case *fuses != "":
		low, high, extend, err := parseFuses(*fuses)
		if err != nil {
			log.Criticalf("-fuses: %v", err)
			return 1
		}
		return oneShot(h.UpdateFuses(context.Background(), low, high, extend), log)
	case *setState != "":
		return oneShot(h.Send(ctx, strconv.FormatUint(uint64(*node), 10), proto.Op(strings.ToUpper(*setState))), log)
	default:
		fmt.Fprintln(os.Stderr, "hub: no verb given; see -help")
		return 1
	}
}

// runLoop serves the hub (and, if httpAddr is set, the HTTP façade) until
// an interrupt or terminate signal arrives.
func runLoop(ctx cancel.Context, h *hub.Hub, log logging.Logger, httpAddr string) int {
	var srv *http.Server
	if httpAddr != "" {
		srv = &http.Server{Addr: httpAddr, Handler: httpapi.New(h, log)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("httpapi: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	if srv != nil {
		_ = srv.Shutdown(context.Background())
	}
	return 0
}

// oneShot runs a single hub call, logging and returning a non-zero exit
// code on failure.
func oneShot(err error, log logging.Logger) int {
	if err != nil {
		log.Criticalf("%v", err)
		return 1
	}
	return 0
}

func closeAll(conns map[string]busengine.Conn) {
	for _, c := range conns {
		c.Close()
	}
}

// parseFuses splits a "LO HI EXT" hex triple, per -fuses.
func parseFuses(s string) (low, high, extend byte, err error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("want 3 hex bytes, got %q", s)
	}
	vals := make([]byte, 3)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("byte %d: %w", i, err)
		}
		vals[i] = byte(v)
	}
	return vals[0], vals[1], vals[2], nil
}
