package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/cortexforge/agentflow/internal/bus"
)

var (
	watchTimeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	watchTypeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	watchDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

// watchFeed dials a gateway's WebSocket endpoint and prints a styled,
// one-line-per-event feed until the connection drops or the process is
// interrupted.
func watchFeed(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("watch: dial %s: %w", url, err)
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	fmt.Printf("watching %s\n", url)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("watch: read: %w", err)
		}

		var e bus.Event
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		fmt.Println(renderEvent(e))
	}
}

func renderEvent(e bus.Event) string {
	ts := watchTimeStyle.Render(e.Timestamp.Local().Format(time.Kitchen))
	kind := watchTypeStyle.Render(string(e.Type))

	detail := e.Reason
	if e.Message != "" {
		detail = e.Message
	}
	if e.Error != "" {
		return fmt.Sprintf("%s %s %s", ts, kind, watchErrorStyle.Render(e.Error))
	}

	scope := ""
	if e.AgentID != "" {
		scope = watchDimStyle.Render(fmt.Sprintf("agent=%s step=%d", e.AgentID, e.StepIndex))
	}
	return fmt.Sprintf("%s %s %s %s", ts, kind, scope, detail)
}
