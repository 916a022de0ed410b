package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/overwork-game/client/internal/chat"
	"github.com/overwork-game/client/internal/config"
	"github.com/overwork-game/client/internal/game"
	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/internal/room"
	"github.com/overwork-game/client/internal/session"
	"github.com/overwork-game/client/pkg/proto"
)

func main() {
	roomID := flag.String("room", "", "room id to join")
	password := flag.String("password", "", "room password, if any")
	flag.Parse()
	if *roomID == "" {
		fmt.Fprintln(os.Stderr, "usage: overwork -room <id> [-password <pw>]")
		os.Exit(2)
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*roomID, *password, log); err != nil {
		log.Fatal("client exited", zap.Error(err))
	}
}

func run(roomID, password string, log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := intercept.NewRegistry(log.Named("intercept"))
	sess := session.New(cfg, reg, log.Named("session"))
	defer sess.Close()

	email := os.Getenv("OVERWORK_EMAIL")
	pw := os.Getenv("OVERWORK_PASSWORD")
	if err := sess.Login(ctx, email, pw); err != nil {
		return err
	}
	me := sess.Account()
	log.Info("logged in", zap.String("nickname", me.Nickname))

	rooms := room.New(ctx, me.ID, sess.Socket(), sess.REST(), reg, room.Timings{}, log.Named("room"))
	defer rooms.Close()
	if err := rooms.JoinRoom(ctx, roomID, password); err != nil {
		return err
	}
	log.Info("joined room", zap.String("room_id", roomID))

	roster := func() []string {
		v := rooms.View()
		ids := make([]string, 0, len(v.Players))
		for _, p := range v.Players {
			ids = append(ids, p.ID)
		}
		return ids
	}
	proj := game.New(ctx, roomID, sess.Socket(), roster, reg, 0, log.Named("game"))
	defer proj.Close()

	messages := chat.New(roomID, proto.ChannelLobby, sess.Socket(), sess.REST(), reg, cfg.HistoryPageSize, log.Named("chat"))
	if err := messages.Open(ctx); err != nil {
		log.Warn("chat history unavailable", zap.Error(err))
	}
	defer messages.Close()
	for _, m := range messages.Messages() {
		fmt.Printf("[%s] %s: %s\n", m.Channel, m.Sender, m.Body)
	}

	printer := reg.Register(proto.Wildcard, func(f proto.Frame) {
		switch f.Event {
		case proto.EvtLobbyMessage, proto.EvtGameMessage:
			var m proto.ChatMessage
			if f.Decode(&m) == nil {
				fmt.Printf("[%s] %s: %s\n", m.Channel, m.Sender, m.Body)
			}
		case proto.EvtUserJoined, proto.EvtUserLeft, proto.EvtReadyChanged:
			v := rooms.View()
			fmt.Printf("-- roster: %d players (all ready: %v)\n", len(v.Players), v.AllReady)
		default:
			if v := proj.View(); v.State != nil && f.Event != proto.EvtGameProgress {
				fmt.Printf("-- phase: %s (turn %d/%d)\n", v.State.Phase, v.State.CurrentTurn, v.State.MaxTurn)
			}
		}
	}, 100)
	defer reg.Unregister(printer)

	// Game chat takes over once the game starts.
	started := reg.Register(proto.EvtGameCreated, func(proto.Frame) {
		messages.SetChannel(proto.ChannelGame)
	}, 50)
	defer reg.Unregister(started)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := messages.Send(scanner.Text()); err != nil {
				log.Warn("send failed", zap.Error(err))
			}
		}
	}()

	select {
	case <-ctx.Done():
		rooms.LeaveRoom()
		sess.Logout(context.Background())
	case sig := <-rooms.Signals():
		fmt.Printf("-- leaving: %s\n", sig.Reason)
	case <-sess.LoggedOut():
		fmt.Println("-- session ended, log in again")
	}
	return nil
}
