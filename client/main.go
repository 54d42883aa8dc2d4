// Bot runner: joins a room with N automated players that drive the game
// through the public action API and snapshot feed, like any human client.
//
// Usage: client -room ABC123 -bots 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imposterparty/roomserver/bot"
	"github.com/imposterparty/roomserver/models"
	"github.com/imposterparty/roomserver/network"
)

var (
	addr     = flag.String("addr", "localhost:8080", "game server address")
	roomCode = flag.String("room", "", "room code to join (required)")
	botCount = flag.Int("bots", 1, "number of bots to run")
)

type joinedBody struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type wsClient struct {
	name string
	conn *network.WSConnection
}

func dial(name string) (*wsClient, error) {
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsClient{name: name, conn: network.NewWSConnection(c)}, nil
}

func (c *wsClient) run(done chan<- string) {
	defer func() { done <- c.name }()
	defer c.conn.Close()

	join, _ := json.Marshal(map[string]string{"code": *roomCode, "name": c.name})
	if err := c.conn.Send(network.MsgTypeJoinRoom, join); err != nil {
		log.Printf("%s: join failed: %v", c.name, err)
		return
	}

	var policy *bot.Policy
	for {
		packet, err := c.conn.ReadPacket()
		if err != nil {
			log.Printf("%s: read error: %v", c.name, err)
			return
		}

		switch packet.MsgID {
		case network.MsgTypeJoinRoom:
			var body joinedBody
			if err := json.Unmarshal(packet.Data, &body); err != nil {
				log.Printf("%s: bad join reply: %v", c.name, err)
				return
			}
			policy = bot.NewPolicy(body.PlayerID, 0)
			log.Printf("%s joined room %s as %s", c.name, body.RoomCode, body.PlayerID)

		case network.MsgTypeRoomSnapshot:
			if policy == nil {
				continue
			}
			var snapshot models.Room
			if err := json.Unmarshal(packet.Data, &snapshot); err != nil {
				log.Printf("%s: bad snapshot: %v", c.name, err)
				continue
			}
			c.react(policy.Next(&snapshot))

		case network.MsgTypeRoomDeleted:
			log.Printf("%s: room deleted, leaving", c.name)
			return

		case network.MsgTypeError:
			log.Printf("%s: server error: %s", c.name, string(packet.Data))
		}
	}
}

func (c *wsClient) react(action bot.Action) {
	send := func(msgID uint16, body interface{}) {
		var data []byte
		if body != nil {
			data, _ = json.Marshal(body)
		}
		if err := c.conn.Send(msgID, data); err != nil {
			log.Printf("%s: send error: %v", c.name, err)
		}
	}

	switch action.Type {
	case bot.ActionMarkReady:
		log.Printf("%s marking ready", c.name)
		send(network.MsgTypeMarkReady, nil)

	case bot.ActionRequestVote:
		log.Printf("%s will request a vote in %v", c.name, action.Delay.Round(time.Second))
		time.AfterFunc(action.Delay, func() {
			send(network.MsgTypeRequestVote, nil)
		})

	case bot.ActionCastVote:
		log.Printf("%s will vote in %v", c.name, action.Delay.Round(time.Second))
		accused := action.AccusedID
		time.AfterFunc(action.Delay, func() {
			send(network.MsgTypeCastVote, map[string]string{"accusedId": accused})
		})
	}
}

func main() {
	flag.Parse()
	if *roomCode == "" {
		fmt.Fprintln(os.Stderr, "usage: client -room <ROOM_CODE> [-bots N] [-addr host:port]")
		os.Exit(1)
	}

	done := make(chan string)
	for i := 0; i < *botCount; i++ {
		name := fmt.Sprintf("Bot-%d", i+1)
		c, err := dial(name)
		if err != nil {
			log.Fatalf("%s: dial failed: %v", name, err)
		}
		go c.run(done)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	remaining := *botCount
	for remaining > 0 {
		select {
		case name := <-done:
			log.Printf("%s finished", name)
			remaining--
		case <-interrupt:
			log.Println("Interrupt received, shutting down bots.")
			return
		}
	}
}
