package main

import (
	"context"
	"fmt"

	"github.com/quarryline/netsync/internal/core/event"
	coresys "github.com/quarryline/netsync/internal/core/system"
	"github.com/quarryline/netsync/internal/handler"
	gonet "github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/session"
	"github.com/quarryline/netsync/internal/system"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func joinCmd(cfgPath *string) *cobra.Command {
	var (
		addr     string
		identity uint64
		name     string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a hosted session",
		Long: `Join a session as a client and run until the host ends it or the
process is interrupted.

Examples:
  netsync join --identity 42
  netsync join --addr 10.0.0.5:7777 --identity 42 --name ada`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), *cfgPath, addr, identity, name)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "host address (default from config)")
	cmd.Flags().Uint64Var(&identity, "identity", 0, "identity to join with (default from config)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default from config)")
	return cmd
}

func runJoin(ctx context.Context, cfgPath, addr string, identity uint64, name string) error {
	a, err := newApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg
	log := a.log

	if addr == "" {
		addr = cfg.Network.HostAddress
	}
	if identity == 0 {
		identity = cfg.Session.Identity
	}
	if identity == 0 {
		return fmt.Errorf("join needs a non-zero identity")
	}
	if name == "" {
		name = cfg.Session.DisplayName
	}

	var (
		ep   *gonet.Endpoint
		conn gonet.ConnID
	)
	switch cfg.Network.Transport {
	case "websocket":
		ep, conn, err = gonet.DialWS(ctx, "ws://"+addr+cfg.Network.WSPath, a.transportOptions(), log)
	default:
		ep, conn, err = gonet.DialTCP(ctx, addr, a.transportOptions(), log)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	bus := event.NewBus()
	c := session.NewClient(session.ClientOptions{
		Options: session.Options{
			Transport:          ep,
			Protocol:           a.protocol(),
			Objects:            a.objects(protocol.RoleClient, protocol.Identity(identity)),
			Bus:                bus,
			Metrics:            a.metrics,
			MaxMessagesPerTick: cfg.Session.MaxMessagesPerTick,
			BaseContext:        ctx,
			Log:                log,
		},
		HostConn: conn,
		Name:     name,
		Password: cfg.Admission.Password,
		Loader:   a.loader(),
	})
	handler.RegisterAll(c.Context, &handler.Deps{Log: log})

	done := make(chan struct{})
	event.Subscribe(bus, func(e event.PeerDisconnected) {
		log.Info("left session", zap.String("reason", e.Reason))
		select {
		case <-done:
		default:
			close(done)
		}
	})
	event.Subscribe(bus, func(e event.SceneChanged) {
		log.Info("loading scene", zap.Int32("scene", e.Scene))
	})

	runner := coresys.NewRunner()
	system.Install(runner, c, a.gameplay(c.Context))

	if err := c.Connect(); err != nil {
		ep.Shutdown()
		return err
	}
	printSection("session")
	printReady(fmt.Sprintf("joining %s as %d", addr, identity))
	fmt.Println()

	err = a.loop(ctx, runner, done)
	if c.State() != session.ClientDisconnected {
		c.Leave("client quit")
	} else {
		c.Teardown()
	}
	return ignoreCanceled(err)
}
