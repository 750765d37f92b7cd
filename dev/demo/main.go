package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Minimal terminal client: logs in, registers on the push channel, pulls
// history with the peer and posts every stdin line as a message.

var (
	flagAddr = flag.String("addr", "127.0.0.1:8000", "server address, ip:port")
	flagUser = flag.String("user", "", "username to log in as")
	flagPeer = flag.String("peer", "", "username to chat with")
)

type message struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type serverMsg struct {
	Type    string   `json:"type"`
	Message *message `json:"message"`
	From    string   `json:"from"`
	Error   string   `json:"error"`
}

func main() {
	flag.Parse()

	if *flagUser == "" || *flagPeer == "" {
		fmt.Fprintln(os.Stderr, "--user and --peer are required")
		os.Exit(1)
	}

	if err := login(*flagUser); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+*flagAddr+"/ws", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	register := map[string]string{"type": "register", "username": *flagUser}
	if err := conn.WriteJSON(register); err != nil {
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		os.Exit(1)
	}

	// Backfill: persisted history is the source of truth, the push channel
	// only covers what arrives while we stay connected.
	if err := printHistory(*flagUser, *flagPeer); err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
	}

	go func() {
		for {
			var in serverMsg
			if err := conn.ReadJSON(&in); err != nil {
				fmt.Fprintf(os.Stderr, "\nconnection closed: %v\n", err)
				os.Exit(0)
			}
			if in.Type == "new_message" && in.Message != nil {
				fmt.Printf("%s: %s\n", in.From, in.Message.Text)
			} else if in.Error != "" {
				fmt.Fprintf(os.Stderr, "server error: %s\n", in.Error)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := send(*flagUser, *flagPeer, text); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
		}
	}
}

func login(username string) error {
	return postJSON("/api/auth/login", map[string]string{"username": username}, nil)
}

func send(sender, recipient, text string) error {
	return postJSON("/api/messages", map[string]interface{}{
		"sender":    sender,
		"recipient": recipient,
		"text":      text,
		"timestamp": time.Now().UnixMilli(),
	}, nil)
}

func printHistory(user, peer string) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/api/messages/%s/%s", *flagAddr, user, peer))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var msgs []*message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Printf("%s: %s\n", m.Sender, m.Text)
	}
	return nil
}

func postJSON(path string, body interface{}, out interface{}) error {
	value, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post("http://"+*flagAddr+path, "application/json", bytes.NewReader(value))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
