// Command chatroom is a terminal client for one marketplace chat room.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"univmarket/internal/chatsession"
	"univmarket/internal/infrastructure/livechannel"
	"univmarket/pkg/client"
	"univmarket/pkg/config"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

const help = `commands:
  <text>      send a message
  /reserve    reserve the product (buyer)
  /complete   complete the transaction (seller)
  /retry      resend a transition notice that did not reach the room
  /refresh    reload the room and its history
  /status     show product and connection status
  /quit       leave the room`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.SetOutput(os.Stderr)

	roomID := flag.String("room", "", "chat room id")
	productID := flag.String("product", "", "open (or reuse) the room for this product instead of -room")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "bearer token, dev-<uid> in development")
	flag.Parse()

	if *token == "" || (*roomID == "" && *productID == "") {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIBaseURL, *token, client.WithTimeout(cfg.HTTPTimeout))

	me, err := api.Me(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load your profile (set a nickname with PUT /v1/users/me): %v\n", err)
		os.Exit(1)
	}
	uid := me.ID

	if *roomID == "" {
		room, err := api.OpenChatRoom(ctx, *productID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open chat room: %v\n", err)
			os.Exit(1)
		}
		*roomID = room.ID
	}

	var (
		mu  sync.Mutex
		out = newTranscript(os.Stdout, uid)
		s   *chatsession.Session
	)
	redraw := func() {
		mu.Lock()
		defer mu.Unlock()
		out.update(s.Room(), s.Messages())
	}

	channel := livechannel.New(livechannel.NewWebsocketDialer(cfg.LiveChannelURL),
		livechannel.WithReconnectDelay(cfg.ReconnectDelay),
		livechannel.WithStateHook(func(c livechannel.Connection) {
			if c.State == livechannel.StateFailed {
				fmt.Fprintf(os.Stderr, "(not live, retry %d in %s)\n", c.Retries, cfg.ReconnectDelay)
			}
		}),
	)
	s = chatsession.NewSession(*roomID, uid, *token, api, channel, chatsession.WithOnChange(redraw))

	if err := s.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	room := s.Room()
	fmt.Printf("%s [%s] with %s\n%s\n\n", room.ProductTitle, s.ProductStatus(), room.CounterpartNickname(uid), help)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, s, line); quit {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, s *chatsession.Session, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	var err error
	switch line {
	case "/quit":
		return true
	case "/help":
		fmt.Println(help)
	case "/reserve":
		err = s.Reserve(ctx)
	case "/complete":
		err = s.Complete(ctx)
	case "/retry":
		err = s.RetryAnnouncement(ctx)
	case "/refresh":
		err = s.Refresh(ctx)
	case "/status":
		conn := s.Connection()
		fmt.Printf("product: %s, channel: %s (retries %d)\n", s.ProductStatus(), conn.State, conn.Retries)
		if ann, ok := s.PendingAnnouncement(); ok {
			fmt.Printf("notice not delivered yet: %s (use /retry)\n", ann.Content)
		}
	default:
		if strings.HasPrefix(line, "/") {
			fmt.Printf("unknown command %s\n%s\n", line, help)
			return false
		}
		err = s.Send(ctx, line)
	}

	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			fmt.Fprintf(os.Stderr, "%s: %s\n", appErr.Code, appErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return false
}
