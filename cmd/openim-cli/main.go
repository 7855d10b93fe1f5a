// Command openim-cli is a thin demo entry point for the SDK: it logs in,
// connects, and prints incoming messages to stdout until interrupted.
// Grounded on the teacher's own flag-based CLI (server/main.go) and the
// original's dedicated CLI binary (original_source/rust/src/bin/).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	openim "github.com/xiaohei189/openim-sdk-core"
	"github.com/xiaohei189/openim-sdk-core/internal/listener"
)

type printingMsgListener struct {
	listener.NoOpAdvancedMsgListener
}

func (printingMsgListener) OnRecvNewMessage(msgJSON string) {
	fmt.Println(msgJSON)
}

func (printingMsgListener) OnConnectionStatusChanged(connected bool) {
	log.Printf("[openim-cli] connection status: %v", connected)
}

func main() {
	dbPath := flag.String("db", "openim-cli.db", "local SQLite database path")
	wsURL := flag.String("ws", "ws://127.0.0.1:10001", "websocket base URL")
	httpURL := flag.String("http", "http://127.0.0.1:10002", "HTTP API base URL")
	areaCode := flag.String("area-code", "+1", "login area code")
	phone := flag.String("phone", "", "login phone number")
	password := flag.String("password", "", "login password")
	flag.Parse()

	if *phone == "" || *password == "" {
		log.Fatal("[openim-cli] -phone and -password are required")
	}

	cfg := openim.NewConfig(
		openim.WithDBPath(*dbPath),
		openim.WithWSBaseURL(*wsURL),
		openim.WithHTTPBaseURL(*httpURL),
	)

	client, err := openim.New(cfg)
	if err != nil {
		log.Fatalf("[openim-cli] %v", err)
	}
	defer client.Close()

	client.SetAdvancedMsgListener(printingMsgListener{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loginResp, err := client.Login(ctx, *areaCode, *phone, *password)
	if err != nil {
		log.Fatalf("[openim-cli] login: %v", err)
	}

	if err := client.Connect(ctx, loginResp.UserID, loginResp.IMToken); err != nil {
		log.Fatalf("[openim-cli] connect: %v", err)
	}
	log.Printf("[openim-cli] connected as %s", loginResp.UserID)

	<-ctx.Done()
	log.Println("[openim-cli] shutting down")
}
