// Command rpsession is a demo embedder: it loads connection configuration,
// drives one session.Session to completion, and prints lifecycle events
// (login PIN prompts, the final quit reason) to stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chiaki-go/rpsession/internal/banner"
	"github.com/chiaki-go/rpsession/internal/obslog"
	"github.com/chiaki-go/rpsession/internal/session"
)

func main() {
	cfg := session.LoadConfig()
	obslog.SetLevel(cfg.LogLevel)
	logger := obslog.New(os.Stdout)
	slog.SetDefault(logger)

	if cfg.Host == "" {
		fmt.Fprintln(os.Stderr, "rpsession: -host (or RPSESSION_HOST) is required")
		os.Exit(1)
	}

	info, err := cfg.ConnectInfo()
	if err != nil {
		slog.Error("invalid connect info", slog.Any("err", err))
		os.Exit(1)
	}

	banner.Print("rpsession", []banner.ConfigLine{
		{Label: "host", Value: info.Host},
		{Label: "console", Value: consoleLabel(info.PS5)},
		{Label: "resolution", Value: fmt.Sprintf("%dx%d@%dfps", info.Video.Width, info.Video.Height, info.Video.MaxFPS)},
		{Label: "loglevel", Value: obslog.GetLevel()},
	})

	done := make(chan struct{})
	var sess *session.Session

	sink := session.EventSinkFunc(func(ev session.Event) {
		switch e := ev.(type) {
		case session.LoginPINRequestEvent:
			pin := promptPIN(e.PINIncorrect)
			if sess != nil {
				_ = sess.SetLoginPIN([]byte(pin))
			}
		case session.QuitEvent:
			if e.ReasonStr != "" {
				fmt.Printf("rpsession[%s]: quit: %s (%s)\n", e.SessionID, e.Reason, e.ReasonStr)
			} else {
				fmt.Printf("rpsession[%s]: quit: %s\n", e.SessionID, e.Reason)
			}
			close(done)
		}
	})

	sess, err = session.New(info, logger, sink)
	if err != nil {
		slog.Error("failed to initialize session", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		slog.Error("failed to start session", slog.Any("err", err))
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		sess.Stop()
	}()

	<-done
	sess.Join()
	sess.Close()
}

func consoleLabel(ps5 bool) string {
	if ps5 {
		return "PS5"
	}
	return "PS4"
}

func promptPIN(incorrect bool) string {
	if incorrect {
		fmt.Print("rpsession: incorrect PIN, enter login PIN again: ")
	} else {
		fmt.Print("rpsession: enter login PIN: ")
	}
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
