package alpaca

import "github.com/gorilla/websocket"

// wireConn is the slice of a websocket connection the stream needs.
// Abstracted so tests can script frames without a network.
type wireConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// dialFunc opens a wire connection to a streaming endpoint
type dialFunc func(url string) (wireConn, error)

func gorillaDial(url string) (wireConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
