// Command tablewatch joins a table's push channel and logs what arrives. It
// exercises the client side end to end: reconnect with backoff, re-announcing
// membership after each connect, and routing messages by type.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/splitpay-backend/internal/channel"
	"github.com/angelmondragon/splitpay-backend/internal/dispatcher"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	"github.com/angelmondragon/splitpay-backend/pkg/env"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", env.Get("SPLITPAY_TABLEWATCH_URL", "ws://localhost:8080"), "api base websocket url")
	tableID := flag.String("table", "", "table id to join")
	role := flag.String("role", string(enums.RoleWaiter), "participant role: customer|waiter")
	name := flag.String("name", "tablewatch", "display name announced to the table")
	maxAttempts := flag.Int("max-attempts", channel.DefaultMaxAttempts, "reconnect attempts before giving up")
	logLevel := flag.String("log-level", env.Get("SPLITPAY_LOG_LEVEL", "info"), "log level")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "tablewatch", Level: logger.ParseLevel(*logLevel)})
	ctx := logg.WithTableID(context.Background(), *tableID)

	if strings.TrimSpace(*tableID) == "" {
		fmt.Fprintln(os.Stderr, "missing -table")
		os.Exit(1)
	}
	participantRole, err := enums.ParseParticipantRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	target, err := tableURL(*baseURL, *tableID, *name, participantRole)
	if err != nil {
		logg.Error(ctx, "invalid url", err)
		os.Exit(1)
	}

	bus := dispatcher.New(
		dispatcher.WithLogger(logg),
		dispatcher.WithDiagnosticSink(func(t enums.MessageType, err error) {
			logg.Error(logg.WithField(ctx, "type", t.String()), "handler failed", err)
		}),
	)
	var subs dispatcher.Group
	for _, msgType := range enums.MessageTypes() {
		subs.Add(bus.Subscribe(msgType, func(msg types.Message) {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"type": msg.Type.String(),
				"data": string(msg.Data),
			}), "message received")
		}))
	}
	defer subs.Close()

	manager, err := channel.NewManager(channel.Params{
		Config: channel.Config{
			URL:         target,
			MaxAttempts: *maxAttempts,
		},
		Dialer: channel.WebsocketDialer{
			WriteWait: 10 * time.Second,
			ReadLimit: 1 << 16,
			PongWait:  2 * channel.DefaultHeartbeatInterval,
		},
		Logger:    logg,
		OnMessage: func(msg types.Message) { bus.Publish(msg.Type, msg) },
	})
	if err != nil {
		logg.Error(ctx, "failed to create channel manager", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	var giveUp sync.Once
	manager.OnStateChange(func(state channel.State) {
		logg.Info(logg.WithField(ctx, "state", string(state)), "channel state changed")
		switch state {
		case channel.StateConnected:
			manager.JoinTable(*tableID, participantRole)
		case channel.StateError:
			giveUp.Do(func() { close(done) })
		}
	})

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Connect(sigCtx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "initial connect failed, retrying")
	}

	select {
	case <-sigCtx.Done():
		manager.LeaveTable(*tableID)
	case <-done:
		logg.Warn(ctx, "giving up after repeated connection failures")
	}
	if err := manager.Disconnect(); err != nil {
		logg.Error(ctx, "disconnect failed", err)
	}

	for _, msg := range bus.History() {
		fmt.Printf("%s\t%s\t%s\n", msg.Timestamp.Format(time.RFC3339), msg.Type, msg.Data)
	}
}

func tableURL(base, tableID, name string, role enums.ParticipantRole) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	u = u.JoinPath("ws", "tables", tableID)
	q := u.Query()
	q.Set("name", name)
	q.Set("role", string(role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
