// ws_smoke dials the relay, joins a room, sends one update, prints the
// broadcast it gets back, and leaves. It is a developer tool, not part of
// the server process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/", "WebSocket address")
	nick := flag.String("nick", "tester", "nickname to join with")
	game := flag.String("game", "lobby", "room name to join")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		return conn.Write(ctx, websocket.MessageText, b)
	}

	readFrame := func() (map[string]any, error) {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		var v map[string]any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		return v, nil
	}

	if err := send(map[string]any{
		"type": "join",
		"id":   1,
		"nick": *nick,
		"game": *game,
	}); err != nil {
		return err
	}

	joined, err := readFrame()
	if err != nil {
		return fmt.Errorf("read join response: %w", err)
	}
	fmt.Printf("join response: %v\n", joined)
	if joined["result"] != "joined" {
		return nil
	}

	if err := send(map[string]any{
		"type":     "update",
		"team_id":  0,
		"position": []float64{10, 20},
		"angle":    1.5,
	}); err != nil {
		return err
	}

	update, err := readFrame()
	if err != nil {
		return fmt.Errorf("read update broadcast: %w", err)
	}
	fmt.Printf("update broadcast: %v\n", update)

	if err := send(map[string]any{"type": "leave"}); err != nil {
		return err
	}
	return nil
}
