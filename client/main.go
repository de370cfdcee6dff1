package main

import (
	"bufio"
	"encoding/json"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/wfunc/liarsbar/network"
)

type CLI struct {
	Addr      string        `kong:"default='localhost:8080',help='Server address'"`
	Name      string        `kong:"help='Player name used by join when none is given'"`
	Heartbeat time.Duration `kong:"default='15s',help='Heartbeat interval'"`
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("liar-client"),
		kong.Description("Terminal client for the Liar card game server"),
		kong.UsageOnError(),
	)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: cli.Addr, Path: "/ws"}
	pterm.Info.Printfln("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		pterm.Fatal.Printfln("Dial failed: %v", err)
	}
	defer c.Close()

	st := &clientState{name: cli.Name}
	outgoing := make(chan outbound, 8)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				pterm.Error.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				pterm.Warning.Printfln("Received invalid packet of size %d", len(message))
				continue
			}
			st.handle(packet)
		}
	}()

	// Stdin loop
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			line := strings.TrimSpace(reader.Text())
			if line == "" {
				continue
			}
			if line == "quit" || line == "exit" {
				interrupt <- os.Interrupt
				return
			}
			if line == "help" {
				printHelp()
				continue
			}
			msgID, req, err := st.parseCommand(line)
			if err != nil {
				pterm.Error.Println(err)
				continue
			}
			outgoing <- outbound{msgID: msgID, req: req}
		}
	}()

	printHelp()
	ticker := time.NewTicker(cli.Heartbeat)
	defer ticker.Stop()
	send(c, network.MsgTypeHeartbeat, []byte("{}"))

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send(c, network.MsgTypeHeartbeat, []byte("{}")); err != nil {
				pterm.Error.Println("Write error:", err)
				return
			}
		case out := <-outgoing:
			data, _ := json.Marshal(out.req)
			if err := send(c, out.msgID, data); err != nil {
				pterm.Error.Println("Write error:", err)
				return
			}
		case <-interrupt:
			pterm.Info.Println("Closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				pterm.Error.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
