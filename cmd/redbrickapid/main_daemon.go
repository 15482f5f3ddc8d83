package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tinkerforge/red-brick-apid/internal/config"
	"github.com/Tinkerforge/red-brick-apid/internal/dispatch"
	"github.com/Tinkerforge/red-brick-apid/internal/logging"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
)

type cmdDaemon struct {
	global *cmdGlobal
}

func (c *cmdDaemon) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "redbrickapid"
	cmd.RunE = c.run

	return cmd
}

func (c *cmdDaemon) run(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := config.Load(c.global.flagConfig)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	if c.global.flagCheckConfig {
		if len(warnings) > 0 {
			return fmt.Errorf("%d configuration warning(s)", len(warnings))
		}

		fmt.Println("configuration OK")
		return nil
	}

	debug := c.global.flagDebug || cfg.DebugLog
	logging.Configure(os.Stderr, debug, c.global.flagDebugFilter)

	if err := os.MkdirAll(cfg.ProgramsDirectory(), 0755); err != nil {
		return fmt.Errorf("creating programs directory: %w", err)
	}

	table := objects.NewTable()
	d := dispatch.New(table, cfg.ProgramsDirectory())
	_ = d // wired for per-connection use once the frame codec is attached

	listener, err := listen(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer listener.Close()

	logging.Infof("daemon", "listening on %s", cfg.SocketPath)

	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			logging.Errorf("daemon", "accept failed: %v", err)
			continue
		}

		go handleConnection(d, conn)
	}
}

// listen binds the daemon's unix socket, removing any stale socket file
// left behind by a previous unclean shutdown, the same dance
// lxd-user/main_daemon.go does for its own self-managed socket path.
func listen(path string) (*net.UnixListener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolving socket address: %w", err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on socket: %w", err)
	}

	listener.SetUnlinkOnClose(true)

	return listener, nil
}

// handleConnection owns one client connection's lifetime. Framing request
// bytes into protocol.Header/body values and writing responses back out is
// the wire codec spec.md §1 places out of scope; once attached, that codec
// calls d.Dispatch per decoded request. For now the daemon accepts and logs
// connections so the socket-activation and lifecycle plumbing around it is
// exercised end to end.
func handleConnection(d *dispatch.Dispatcher, conn *net.UnixConn) {
	defer conn.Close()

	logging.Debugf("daemon", "client connected")
	<-connClosed(conn)
	logging.Debugf("daemon", "client disconnected")
}

func connClosed(conn *net.UnixConn) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	return done
}
