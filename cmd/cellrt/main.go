// Command cellrt runs a demo cell controller: a three-state picking/
// placing/homing machine wired to an RPC router and a topic broker,
// matching the teacher's main.go load-config/build-router/serve-with-
// graceful-shutdown shape.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vention.dev/cellrt/internal/broker"
	"vention.dev/cellrt/internal/config"
	"vention.dev/cellrt/internal/fsm"
	"vention.dev/cellrt/internal/logging"
	"vention.dev/cellrt/internal/rpcregistry"
	"vention.dev/cellrt/internal/rpcrouter"
)

func main() {
	logging.Init()
	log := logging.L()
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	b := broker.New()
	defer b.Close()

	stateTopic := b.CreateTopic("cell.state", broker.TopicConfig{
		QueueMaxSize: cfg.StreamConfig("cell.state").QueueMaxSize,
		Policy:       cfg.StreamConfig("cell.state").Policy,
		Replay:       cfg.StreamConfig("cell.state").Replay,
	})

	def, err := buildCellDefinition(cfg.HistorySize, cfg.EnableLastStateRecovery)
	if err != nil {
		log.Fatal("failed to build cell state machine", zap.Error(err))
	}

	inst := fsm.NewInstance(cfg.Name, def, nil, func(ev fsm.Event) {
		stateTopic.Publish(cellStateEvent{
			From:      string(ev.From),
			To:        string(ev.To),
			Trigger:   string(ev.Trigger),
			Timestamp: ev.Timestamp,
		}, ev.Timestamp)
	})
	defer inst.Stop()

	reg := rpcregistry.New()
	if err := reg.Merge(rpcregistry.FSMBundle(inst, cfg.HistorySize)); err != nil {
		log.Fatal("failed to register FSM actions", zap.Error(err))
	}
	if err := reg.Merge(rpcregistry.RpcBundle{
		Streams: []rpcregistry.StreamEntry{{
			Name:         "WatchCellState",
			Topic:        stateTopic,
			PayloadType:  nil,
			Replay:       cfg.StreamConfig("cell.state").Replay,
			QueueMaxSize: cfg.StreamConfig("cell.state").QueueMaxSize,
			Policy:       cfg.StreamConfig("cell.state").Policy,
		}},
	}); err != nil {
		log.Fatal("failed to register cell state stream", zap.Error(err))
	}
	reg.Finalize()

	router := rpcrouter.New(rpcrouter.Config{
		AppName:            cfg.Name,
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		Logger:             log,
	}, reg)

	if err := inst.Start(context.Background()); err != nil {
		log.Fatal("failed to start cell state machine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming RPCs are long-lived by design
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("cellrt server starting",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("service", router.ServiceFQN()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down cellrt server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("cellrt server shut down gracefully")
}

// cellStateEvent is the payload published to the cell.state topic on every
// committed transition.
type cellStateEvent struct {
	From      string
	To        string
	Trigger   string
	Timestamp int64
}

// buildCellDefinition wires the demo cell: picking, placing, and homing
// leaves under a single running root, cycling picking -> placing -> homing
// -> picking on a 3s auto-timeout each, matching spec.md §8 scenario 1
// ("happy path cycle"). EnableLastStateRecovery mirrors scenario 6.
func buildCellDefinition(historySize int, enableRecovery bool) (*fsm.Definition, error) {
	roots := []fsm.StateSpec{
		{Name: "running", Initial: "picking", Children: []fsm.StateSpec{
			{Name: "picking"},
			{Name: "placing"},
			{Name: "homing"},
		}},
	}

	advance := func() fsm.Trigger { return "advance" }

	b := fsm.NewBuilder(roots, "running").
		HistorySize(historySize).
		EnableLastStateRecovery(enableRecovery).
		OnEnterWithTimeout("picking", 3.0, advance, func(ctx context.Context, inst *fsm.Instance) error {
			logging.L().Debug("entered picking", zap.String("instance", inst.ID()))
			return nil
		}).
		OnEnterWithTimeout("placing", 3.0, advance, func(ctx context.Context, inst *fsm.Instance) error {
			logging.L().Debug("entered placing", zap.String("instance", inst.ID()))
			return nil
		}).
		OnEnterWithTimeout("homing", 3.0, advance, func(ctx context.Context, inst *fsm.Instance) error {
			logging.L().Debug("entered homing", zap.String("instance", inst.ID()))
			return nil
		}).
		AddTransition(fsm.TransitionSpec{Trigger: "advance", Source: "picking", Destination: "placing"}).
		AddTransition(fsm.TransitionSpec{Trigger: "advance", Source: "placing", Destination: "homing"}).
		AddTransition(fsm.TransitionSpec{Trigger: "advance", Source: "homing", Destination: "picking"})

	return b.Build()
}
