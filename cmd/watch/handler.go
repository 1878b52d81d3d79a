package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"
	"golang.org/x/term"

	cmdcore "github.com/projecteru2/modelforge/cmd/core"
	"github.com/projecteru2/modelforge/notify"
)

const notificationPath = "/ws_notification"

type Handler struct{}

func (Handler) Watch(cmd *cobra.Command, args []string) error {
	ctx := cmdcore.CommandContext(cmd)
	raw, _ := cmd.Flags().GetBool("json")

	wsURL, origin, err := notificationURL(args[0])
	if err != nil {
		return err
	}
	ws, err := websocket.Dial(wsURL, "", origin)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	defer ws.Close() //nolint:errcheck

	width := terminalWidth(os.Stdout)
	for {
		var msg notify.Message
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		if raw {
			b, _ := json.Marshal(msg)
			fmt.Println(string(b))
			continue
		}
		fmt.Println(truncate(formatMessage(msg), width))
	}
}

// notificationURL turns a controller base address into its websocket
// endpoint and a matching Origin.
func notificationURL(base string) (string, string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("unsupported scheme in %q", base)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("missing host in %q", base)
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = notificationPath
	}
	return u.String(), origin, nil
}

func formatMessage(msg notify.Message) string {
	if msg.Body == "" {
		return fmt.Sprintf("[%s]", msg.Type)
	}
	return fmt.Sprintf("[%s] %s", msg.Type, msg.Body)
}

// terminalWidth is 0 when f is not a terminal.
func terminalWidth(f *os.File) int {
	fd := int(f.Fd()) //nolint:gosec
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// truncate cuts s to width runes, marking the cut. width <= 0 disables it.
func truncate(s string, width int) string {
	s = strings.TrimRight(s, "\r\n")
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 { //nolint:mnd
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
