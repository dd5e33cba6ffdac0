// Command pmu-client is a small manual-testing harness over DeviceClient:
// connect to a serial port or the emulator, run one command, print the
// result, exit. Grounded on the teacher's cmd/can-server's "flag package,
// appConfig, single daemon purpose" shape, adapted from a long-running
// server to a one-shot CLI since a device client invocation only needs
// flag configuration, not subcommand parsing (that richer surface
// belongs to cmd/pmu-test-runner's urfave/cli App instead).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rakyury/pmu30-host/internal/client"
	"github.com/rakyury/pmu30-host/internal/link"
	"github.com/rakyury/pmu30-host/internal/logging"
	"github.com/rakyury/pmu30-host/internal/telemetry"
	"github.com/rakyury/pmu30-host/internal/transport"
)

func main() {
	port := flag.String("port", "SIMULATOR", "serial port path, or SIMULATOR for localhost:9876")
	baud := flag.Int("baud", link.DefaultBaud, "serial baud rate")
	cmd := flag.String("cmd", "ping", "command: ping|get-info|get-config|save-config|clear-config|set-output|start-stream")
	channelID := flag.Uint("channel", 0, "channel id for set-output")
	value := flag.Float64("value", 0, "value for set-output")
	timeout := flag.Duration("timeout", 3*time.Second, "per-command timeout")
	logFormat := flag.String("log-format", "text", "log format: text|json")
	flag.Parse()

	logging.Set(logging.New(*logFormat, slog.LevelInfo, os.Stderr))

	lk, err := openLink(*port, *baud)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open link:", err)
		os.Exit(1)
	}
	defer lk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := transport.New(ctx, lk)
	go func() { _ = tr.Poll(ctx) }()

	dc := client.New(tr)
	reqCtx, reqCancel := context.WithTimeout(ctx, *timeout)
	defer reqCancel()

	if err := run(reqCtx, dc, *cmd, uint16(*channelID), float32(*value)); err != nil {
		fmt.Fprintln(os.Stderr, "command failed:", err)
		os.Exit(1)
	}
}

func openLink(port string, baud int) (link.Link, error) {
	if port == "SIMULATOR" || port == "" {
		return link.OpenTCP(link.DefaultEmulatorAddr)
	}
	return link.OpenSerial(port, baud, 500*time.Millisecond)
}

func run(ctx context.Context, dc *client.DeviceClient, cmd string, channelID uint16, value float32) error {
	switch cmd {
	case "ping":
		if err := dc.Ping(ctx); err != nil {
			return err
		}
		fmt.Println("PONG")
	case "get-info":
		info, err := dc.GetInfo(ctx)
		if err != nil {
			return err
		}
		b, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(b))
	case "get-config":
		cfg, err := dc.GetConfig(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d channels\n", len(cfg.Channels))
	case "save-config":
		if err := dc.SaveConfig(ctx); err != nil {
			return err
		}
		fmt.Println("saved")
	case "clear-config":
		if err := dc.ClearConfig(ctx); err != nil {
			return err
		}
		fmt.Println("cleared")
	case "set-output":
		if err := dc.SetOutput(ctx, channelID, value); err != nil {
			return err
		}
		fmt.Println("ok")
	case "start-stream":
		if err := dc.StartStream(10, telemetry.SectionADC|telemetry.SectionDin); err != nil {
			return err
		}
		fmt.Println("streaming")
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
