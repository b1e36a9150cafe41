package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"joybus/host/client"
	"joybus/host/serial"
	"joybus/protocol"
)

func main() {
	app := cli.NewApp()
	app.Name = "joybus-host"
	app.Description = "Issue raw Joybus transactions through the USB bridge firmware"
	app.Usage = "joybus-host [options] <command>"
	app.Version = protocol.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "device",
			Usage: "Serial device path",
			Value: "/dev/ttyACM0",
		},
		cli.IntFlag{
			Name:  "baud",
			Usage: "Baud rate (ignored for USB CDC)",
			Value: 115200,
		},
		cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "Serial read timeout",
			Value: 50 * time.Millisecond,
		},
		cli.DurationFlag{
			Name:  "reply-timeout",
			Usage: "How long to wait for each bridge reply",
			Value: client.DefaultReplyTimeout,
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log every bridge frame",
		},
	}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		{
			Name:      "transact",
			Usage:     "Send a message and receive a response",
			ArgsUsage: "<hex byte>...",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "response-len, n",
					Usage: "Number of response bytes to receive",
					Value: 0,
				},
				cli.DurationFlag{
					Name:  "timeout, t",
					Usage: "Inter-byte receive timeout",
					Value: 100 * time.Microsecond,
				},
			},
			Action: runTransact,
		},
		{
			Name:   "reset",
			Usage:  "Return the bridge port to receive mode",
			Action: runReset,
		},
		{
			Name:      "ping",
			Usage:     "Check that the bridge firmware is responding",
			ArgsUsage: "[token]",
			Action:    runPing,
		},
		{
			Name:   "shell",
			Usage:  "Interactive session",
			Action: runShell,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running joybus-host", "error", err)
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) error {
	level := slog.LevelInfo
	if c.GlobalBool("verbose") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

func dial(c *cli.Context) (*client.Client, error) {
	cfg := serial.DefaultConfig(c.GlobalString("device"))
	cfg.Baud = c.GlobalInt("baud")
	cfg.ReadTimeout = c.GlobalDuration("read-timeout")

	slog.Debug("Opening bridge", "device", cfg.Device, "baud", cfg.Baud)
	conn, err := client.Dial(cfg, client.WithReplyTimeout(c.GlobalDuration("reply-timeout")))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

func runTransact(c *cli.Context) error {
	message, err := parseHexBytes(c.Args())
	if err != nil {
		return err
	}

	conn, err := dial(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	return transact(conn, message, c.Int("response-len"), c.Duration("timeout"))
}

func runReset(c *cli.Context) error {
	conn, err := dial(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.ResetReceive(context.Background()); err != nil {
		return err
	}
	fmt.Println("receive mode restored")
	return nil
}

func runPing(c *cli.Context) error {
	token := uint32(time.Now().UnixNano())
	if c.NArg() > 0 {
		v, err := strconv.ParseUint(c.Args().Get(0), 0, 32)
		if err != nil {
			return fmt.Errorf("invalid token %q: %w", c.Args().Get(0), err)
		}
		token = uint32(v)
	}

	conn, err := dial(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	return ping(conn, token)
}

func runShell(c *cli.Context) error {
	conn, err := dial(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	timeout := 100 * time.Microsecond

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			return nil

		case "help", "?":
			printHelp()

		case "timeout":
			if len(parts) != 2 {
				fmt.Printf("timeout is %v\n", timeout)
				continue
			}
			d, err := time.ParseDuration(parts[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			timeout = d

		case "tx", "transact":
			if len(parts) < 2 {
				fmt.Println("usage: tx <response-len> [hex byte]...")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid response length %q\n", parts[1])
				continue
			}
			message, err := parseHexBytes(parts[2:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			if err := transact(conn, message, n, timeout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "reset":
			if err := conn.ResetReceive(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "ping":
			if err := ping(conn, uint32(time.Now().UnixNano())); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", parts[0])
		}
	}

	return scanner.Err()
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  tx <n> [hex]...  - Send bytes, receive n response bytes")
	fmt.Println("  timeout [dur]    - Show or set the inter-byte timeout (e.g. 200us)")
	fmt.Println("  reset            - Return the port to receive mode")
	fmt.Println("  ping             - Check the bridge is alive")
	fmt.Println("  quit/exit/q      - Exit the program")
	fmt.Println()
}

func transact(conn *client.Client, message []byte, responseLen int, timeout time.Duration) error {
	res, err := conn.Transact(context.Background(), message, responseLen, timeout)
	if err != nil {
		return err
	}
	fmt.Println(formatResult(res))
	return nil
}

func ping(conn *client.Client, token uint32) error {
	start := time.Now()
	if err := conn.Ping(context.Background(), token); err != nil {
		return err
	}
	fmt.Printf("pong in %v\n", time.Since(start))
	return nil
}

// parseHexBytes accepts bytes as "0a", "0x0a" or "0A"
func parseHexBytes(args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, arg := range args {
		s := strings.TrimPrefix(strings.ToLower(arg), "0x")
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q", arg)
		}
		out = append(out, byte(v))
	}
	if len(out) > protocol.MaxMessageLen {
		return nil, fmt.Errorf("message longer than %d bytes", protocol.MaxMessageLen)
	}
	return out, nil
}

// formatResult renders received bytes in hex, noting short reads
func formatResult(res protocol.Result) string {
	var b strings.Builder
	b.WriteString("response:")
	if len(res.Response) == 0 {
		b.WriteString(" (none)")
	}
	for _, v := range res.Response {
		fmt.Fprintf(&b, " %02x", v)
	}
	if res.Short() {
		fmt.Fprintf(&b, " (short read: %d of %d bytes)", len(res.Response), res.Requested)
	}
	return b.String()
}
