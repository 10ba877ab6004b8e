// Command echoserver is a WebSocket endpoint for trying tickfire locally.
//
//	go run ./scripts/testservers/echoserver -port 66 -mode search
//	tickfire --target ws://localhost:66/search --corpus mind --corpus wire
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type serverMode string

const (
	modeEcho   serverMode = "echo"   // reply with the received frame
	modeSearch serverMode = "search" // reply with a small JSON result for the term
	modeSilent serverMode = "silent" // read the frame and never answer
	modeClose  serverMode = "close"  // close the connection instead of answering
	modeEmpty  serverMode = "empty"  // answer with an empty frame
)

func main() {
	mode := flag.String("mode", string(modeEcho), "Server mode: echo, search, silent, close, empty")
	port := flag.Int("port", 0, "Listening port")
	path := flag.String("path", "/search", "WebSocket path")
	delay := flag.Duration("delay", 0, "Delay before answering")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	switch serverMode(*mode) {
	case modeEcho, modeSearch, modeSilent, modeClose, modeEmpty:
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	log.Fatal(runWebSocketServer(*port, *path, serverMode(*mode), *delay))
}

func runWebSocketServer(port int, path string, mode serverMode, delay time.Duration) error {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		go handleWebSocketConn(conn, mode, delay)
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("%s WebSocket server listening on %s%s", mode, addr, path)
	return http.ListenAndServe(addr, mux)
}

func handleWebSocketConn(conn *websocket.Conn, mode serverMode, delay time.Duration) {
	defer conn.Close()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}

		switch mode {
		case modeSilent:
			continue
		case modeClose:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
			return
		case modeEmpty:
			data = nil
		case modeSearch:
			msgType = websocket.TextMessage
			data = searchResult(string(data))
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

func searchResult(term string) []byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	body, _ := json.Marshal(map[string]any{
		"query": term,
		"hits":  h.Sum32() % 100,
		"at":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	return body
}
