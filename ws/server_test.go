package ws

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServer_RejectsRoomNameWithColon(t *testing.T) {
	req := require.New(t)
	server := NewServer("localhost", 0, nil, 8, slog.Default())

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	// "a:b" would collide with room "a"'s history key prefix, so the
	// request must bounce before any upgrade or room lookup happens.
	resp, err := http.Get(srv.URL + "/rooms/a:b/websocket")
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusBadRequest, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(body), "invalid room name")
}
