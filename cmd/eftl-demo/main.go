// Package main is a small driver for exercising an eftl server from
// the command line: subscribe, publish, request, and key/value map
// operations against the endpoints named in a profile file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	eftl "github.com/nugget/eftl-go"
	"github.com/nugget/eftl-go/internal/profile"
)

func main() {
	configPath := flag.String("config", "", "path to profile file")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	if flag.Arg(0) == "init" {
		dir := "."
		if flag.NArg() > 1 {
			dir = flag.Arg(1)
		}
		if err := runInit(os.Stdout, dir); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	path, err := profile.Resolve(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	prof, err := profile.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := prof.Logger(os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	conn, err := eftl.NewConnection(prof.URL, prof.Options(logger), eftl.ConnectionCallbacks{
		OnDisconnect: func(_ *eftl.Connection, code int, reason string) {
			logger.Info("disconnected", "code", code, "reason", reason)
		},
		OnError: func(err error) {
			logger.Error("connection error", "error", err)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := conn.Connect(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cancel()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Disconnect(ctx)
	}()

	switch flag.Arg(0) {
	case "sub":
		err = runSub(conn, logger, flag.Args()[1:])
	case "pub":
		err = runPub(conn, logger, flag.Args()[1:])
	case "request":
		err = runRequest(conn, logger, flag.Args()[1:])
	case "kv":
		err = runKV(conn, logger, flag.Args()[1:])
	default:
		usage()
		err = fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: eftl-demo [-config profile.yaml] <command>

commands:
  init [dir]                   write an example profile.yaml
  sub [matcher-json]           subscribe and print matching messages
  pub <message-json>           publish one message and wait for the ack
  request <message-json>       send a request and print the reply
  kv <map> get <key>           read a key
  kv <map> set <key> <json>    store a message under a key
  kv <map> remove <key>        delete a key`)
}

// parseMessage builds an eftl message from a JSON object literal.
func parseMessage(arg string) (*eftl.Message, error) {
	msg := &eftl.Message{}
	if err := msg.UnmarshalJSON([]byte(arg)); err != nil {
		return nil, fmt.Errorf("parse message %q: %w", arg, err)
	}
	return msg, nil
}

func runSub(conn *eftl.Connection, logger *slog.Logger, args []string) error {
	var matcher map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal([]byte(args[0]), &matcher); err != nil {
			return fmt.Errorf("parse matcher %q: %w", args[0], err)
		}
	}

	id, err := conn.Subscribe(eftl.SubscriptionOptions{Matcher: matcher}, eftl.SubscriptionCallbacks{
		OnSubscribe: func() { logger.Info("subscribed") },
		OnMessage: func(msg *eftl.Message) {
			fmt.Println(msg.String())
		},
		OnError: func(err error) { logger.Error("subscription error", "error", err) },
	})
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return conn.Unsubscribe(id, false)
}

func runPub(conn *eftl.Connection, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pub <message-json>")
	}
	msg, err := parseMessage(args[0])
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	err = conn.Publish(msg, eftl.PublishCallbacks{
		OnComplete: func(*eftl.Message) { done <- nil },
		OnError:    func(err error) { done <- err },
	})
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	logger.Info("published", "message", msg.String())
	return nil
}

func runRequest(conn *eftl.Connection, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: request <message-json>")
	}
	msg, err := parseMessage(args[0])
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	err = conn.SendRequest(msg, 10*time.Second, eftl.RequestReplyCallbacks{
		OnReply: func(reply *eftl.Message) {
			fmt.Println(reply.String())
			done <- nil
		},
		OnError: func(err error) { done <- err },
	})
	if err != nil {
		return err
	}
	return <-done
}

func runKV(conn *eftl.Connection, logger *slog.Logger, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: kv <map> get|set|remove <key> [json]")
	}
	kv := conn.Map(args[0])
	key := args[2]

	done := make(chan error, 1)
	cb := eftl.MapCallbacks{
		OnSuccess: func(value *eftl.Message, key string) {
			if value != nil {
				fmt.Println(value.String())
			}
			done <- nil
		},
		OnError: func(err error, _ string) { done <- err },
	}

	var err error
	switch args[1] {
	case "get":
		err = kv.Get(key, cb)
	case "set":
		if len(args) != 4 {
			return fmt.Errorf("usage: kv <map> set <key> <json>")
		}
		var msg *eftl.Message
		if msg, err = parseMessage(args[3]); err != nil {
			return err
		}
		err = kv.Set(key, msg, cb)
	case "remove":
		err = kv.Remove(key, cb)
	default:
		return fmt.Errorf("unknown kv operation %q", args[1])
	}
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	logger.Debug("kv operation complete", "map", args[0], "op", args[1], "key", key)
	return nil
}
