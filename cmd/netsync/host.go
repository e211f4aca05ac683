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

func hostCmd(cfgPath *string) *cobra.Command {
	var (
		bind  string
		scene int32
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a session",
		Long: `Host a session: listen for peers, load the start scene and run the
authoritative tick loop until interrupted.

Examples:
  netsync host
  netsync host --bind 0.0.0.0:9000 --scene 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), *cfgPath, bind, scene, cmd.Flags().Changed("scene"))
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "listen address (default from config)")
	cmd.Flags().Int32Var(&scene, "scene", 0, "start scene index (default from config)")
	return cmd
}

func runHost(ctx context.Context, cfgPath, bind string, scene int32, sceneSet bool) error {
	a, err := newApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg
	log := a.log

	if bind == "" {
		bind = cfg.Network.BindAddress
	}
	if !sceneSet {
		scene = cfg.Data.StartScene
	}
	identity := protocol.Identity(cfg.Session.Identity)
	if identity == protocol.NoIdentity {
		identity = 1
	}

	admission, err := session.NewAdmission(cfg.Admission)
	if err != nil {
		return fmt.Errorf("admission: %w", err)
	}

	var ep *gonet.Endpoint
	switch cfg.Network.Transport {
	case "websocket":
		ep, err = gonet.ListenWS(bind, cfg.Network.WSPath, a.transportOptions(), log)
	default:
		ep, err = gonet.ListenTCP(bind, a.transportOptions(), log)
	}
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	bus := event.NewBus()
	h := session.NewHost(session.HostOptions{
		Options: session.Options{
			Transport:          ep,
			Protocol:           a.protocol(),
			Objects:            a.objects(protocol.RoleHost, identity),
			Bus:                bus,
			Metrics:            a.metrics,
			MaxMessagesPerTick: cfg.Session.MaxMessagesPerTick,
			BaseContext:        ctx,
			Log:                log,
		},
		Admission:              admission,
		Loader:                 a.loader(),
		LoadingTimeout:         cfg.Session.LoadingTimeout,
		HelloTimeout:           cfg.Session.HelloTimeout,
		KeepPlayerOnDisconnect: cfg.Session.KeepPlayerOnDisconnect,
	})
	handler.RegisterAll(h.Context, &handler.Deps{Log: log})
	subscribeHostEvents(bus, log)

	runner := coresys.NewRunner()
	system.Install(runner, h, a.gameplay(h.Context))

	if err := h.Start(scene); err != nil {
		ep.Shutdown()
		return fmt.Errorf("start host: %w", err)
	}

	printSection("session")
	printReady(fmt.Sprintf("listening on %s (%s)", bind, cfg.Network.Transport))
	printReady(fmt.Sprintf("tick loop running (tick: %s)", cfg.Session.TickRate))
	fmt.Println()

	err = a.loop(ctx, runner, nil)
	h.Stop("host shutting down")
	log.Info("host stopped")
	return ignoreCanceled(err)
}

func subscribeHostEvents(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(e event.PeerConnected) {
		log.Info("peer joined", zap.String("name", e.Name), zap.Uint64("identity", uint64(e.Identity)))
	})
	event.Subscribe(bus, func(e event.PeerDisconnected) {
		log.Info("peer left", zap.Uint64("identity", uint64(e.Identity)), zap.String("reason", e.Reason))
	})
	event.Subscribe(bus, func(e event.SceneStable) {
		log.Info("all peers loaded", zap.Int32("scene", e.Scene))
	})
}
