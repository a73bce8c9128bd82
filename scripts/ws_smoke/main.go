package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/termicomm/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8082/ws", "WebSocket bridge address")
	user := flag.String("user", "tester", "username to identify with")
	channel := flag.Int64("channel", 1, "channel id to post into")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(op proto.Op, payload any) error {
		record, err := proto.Encode(op, payload)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, record[:len(record)-1]); err != nil {
			return fmt.Errorf("send op %d: %w", op, err)
		}
		return nil
	}

	if err := send(proto.OpIdentify, proto.IdentifyData{Username: *user}); err != nil {
		return err
	}
	if err := send(proto.OpMessage, proto.MessageData{Content: *text, ChannelID: *channel}); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := proto.DecodeEvent(data)
		if err != nil {
			fmt.Printf("Malformed: %s\n", data)
			continue
		}

		switch e := ev.(type) {
		case proto.PresenceSync:
			fmt.Printf("Online: %v\n", e.Usernames)
		case proto.GuildSync:
			fmt.Printf("Guilds: %d\n", len(e.Guilds))
		case proto.UserJoined:
			fmt.Printf("Join: user=%s\n", e.Username)
		case proto.UserLeft:
			fmt.Printf("Left: user=%s\n", e.Username)
		case proto.MessageCreated:
			fmt.Printf("Message: channel=%d user=%s text=%q\n", e.ChannelID, e.Author, e.Content)
			if e.Author == *user && e.Content == *text && e.ChannelID == *channel {
				return nil
			}
		default:
			fmt.Printf("Event: op=%d\n", ev.Op())
		}
	}
}
