// jcterm is a terminal collaboration client: it joins a room on the relay,
// mirrors the shared code buffer and chat to stdout, and sends stdin lines
// as chat. Lines starting with "/code " replace the shared buffer.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ANU-2524/JustCoding-sub000/internal/config"
	"github.com/ANU-2524/JustCoding-sub000/internal/ledger"
	"github.com/ANU-2524/JustCoding-sub000/internal/session"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <room> <username>\n", os.Args[0])
		os.Exit(2)
	}
	roomID, username := os.Args[1], os.Args[2]

	cfg := config.Load()

	led := ledger.New(ledger.NewFileBackend(cfg.LedgerPath), logger)
	ctrl := session.NewController(cfg.RelayURL, led, logger)

	ctrl.OnCodeUpdate = func(code string) {
		fmt.Printf("── shared buffer ──\n%s\n───────────────────\n", code)
	}
	ctrl.OnChat = func(entry session.ChatEntry) {
		fmt.Printf("[%s] %s\n", entry.Username, entry.Message)
	}
	ctrl.OnPresence = func(display string, joined bool) {
		if joined {
			fmt.Printf("* %s joined\n", display)
		} else {
			fmt.Printf("* %s left\n", display)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := ctrl.Join(ctx, roomID, username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "join failed (retry later): %v\n", err)
		os.Exit(1)
	}
	defer handle.Close()

	go ctrl.Run(ctx)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		handle.Close()
		cancel()
		os.Exit(0)
	}()

	fmt.Printf("joined %q as %q — type to chat, /code <text> to edit, ctrl-c to leave\n", roomID, username)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/code ") {
			if err := ctrl.SetCode(strings.TrimPrefix(line, "/code ")); err != nil {
				fmt.Fprintf(os.Stderr, "edit failed: %v\n", err)
			}
			continue
		}
		if err := ctrl.SendChat(line); err != nil {
			fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
		}
	}
}
