package stream

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/scrybe-cli/scrybe/internal/debug"
	"github.com/scrybe-cli/scrybe/pkg/protocol"
)

// streamWS opens the WebSocket transport: the request goes out as one JSON
// frame and each incoming frame carries one already-typed event.
func (c *Client) streamWS(ctx context.Context, req protocol.ChatRequest) (<-chan RawEvent, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, _, err := websocket.Dial(ctx, c.baseURL+"/api/chat/ws", nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("stream: dial websocket: %w", err)
	}
	conn.SetReadLimit(maxLineSize)

	if err := wsjson.Write(ctx, conn, req); err != nil {
		conn.CloseNow()
		cancel()
		return nil, nil, fmt.Errorf("stream: send request: %w", err)
	}
	debug.LogKV("stream", "websocket stream opened", "thread_id", req.ThreadID)

	ch := make(chan RawEvent, 64)
	go func() {
		defer close(ch)
		defer conn.CloseNow()
		for {
			var ev protocol.Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
					return
				}
				ch <- RawEvent{Err: err}
				return
			}
			select {
			case ch <- RawEvent{Parsed: ev}:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return ch, stop, nil
}
