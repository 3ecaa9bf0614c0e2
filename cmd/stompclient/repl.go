package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/client"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/event"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/session"
)

// appState is threaded through the command loop.
type appState struct {
	quit bool
}

type repl struct {
	cfg     appConfig
	session *client.Session
	out     io.Writer
	rng     *rand.Rand

	ok   *color.Color
	fail *color.Color
}

func newREPL(cfg appConfig, s *client.Session, out io.Writer) *repl {
	return &repl{
		cfg:     cfg,
		session: s,
		out:     out,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		ok:      color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
	}
}

// run executes commands from in until quit, end of input, or ctx ends. A
// logged-in session is logged out before returning.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	state := &appState{}
	for !state.quit {
		select {
		case <-ctx.Done():
			state.quit = true
		case line, ok := <-lines:
			if !ok {
				state.quit = true
				continue
			}
			r.execute(ctx, state, line)
		}
	}

	if r.session.LoggedIn() {
		if err := r.session.Logout(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Msgf("stompclient logout on exit err=%v", err)
		}
	}
	closeErr := r.session.Close()
	select {
	case err := <-scanErr:
		if err != nil {
			return err
		}
	default:
	}
	return closeErr
}

func (r *repl) execute(ctx context.Context, state *appState, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	var err error
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "login":
		err = r.login(ctx, args)
	case "join":
		err = r.join(ctx, args)
	case "exit":
		err = r.exit(ctx, args)
	case "report":
		err = r.report(ctx, args)
	case "summary":
		err = r.summary(args)
	case "logout":
		err = r.logout(ctx, args)
	case "quit":
		state.quit = true
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		r.fail.Fprintf(r.out, "%v\n", err)
	}
}

func usage(format string) error {
	return fmt.Errorf("usage: %s", format)
}

func (r *repl) printf(format string, args ...any) {
	r.ok.Fprintf(r.out, format+"\n", args...)
}

// login retries connection failures up to max_connect_attempts with backoff.
// Server rejections are not retried.
func (r *repl) login(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usage("login <host:port> <user> <password>")
	}
	addr, user, pass := args[0], args[1], args[2]

	attempts := max(r.cfg.MaxConnectAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := r.session.Login(ctx, addr, user, pass)
		if err == nil {
			r.printf("Login successful")
			return nil
		}
		if !errors.Is(err, client.ErrConnectionFailed) || attempt >= attempts {
			if errors.Is(err, client.ErrConnectionFailed) {
				return fmt.Errorf("could not connect to server: %w", err)
			}
			return err
		}
		delay := session.NextBackoffDelay(r.cfg.Session.Backoff, attempt, r.rng)
		log.Info().Msgf("stompclient login retry attempt=%d delay=%s", attempt+1, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *repl) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("join <channel>")
	}
	if err := r.session.Subscribe(ctx, args[0]); err != nil {
		return err
	}
	r.printf("Joined channel %s", args[0])
	return nil
}

func (r *repl) exit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("exit <channel>")
	}
	if err := r.session.Unsubscribe(ctx, args[0]); err != nil {
		return err
	}
	r.printf("Exited channel %s", args[0])
	return nil
}

func (r *repl) report(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("report <file>")
	}
	if !r.session.LoggedIn() {
		return client.ErrNotLoggedIn
	}
	channel, events, err := event.LoadFile(args[0])
	if err != nil {
		return err
	}
	err = r.session.ReportAll(ctx, events)
	if err != nil {
		return fmt.Errorf("report to %s: %w", channel, err)
	}
	r.printf("reported %d events to %s", len(events), channel)
	return nil
}

func (r *repl) summary(args []string) error {
	if len(args) != 3 {
		return usage("summary <channel> <user> <file>")
	}
	channel, user, path := args[0], args[1], args[2]
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	events := r.session.Store().Events(channel, user)
	if err := event.WriteSummary(f, channel, events, time.Local); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.printf("summary of %d events written to %s", len(events), path)
	return nil
}

func (r *repl) logout(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("logout")
	}
	if err := r.session.Logout(ctx); err != nil {
		return err
	}
	r.printf("Logged out")
	return nil
}
