package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chasingyou/server"
)

// chasingyou 局域网对局服务器：玩家通过 TCP 加入，管理员在控制台开局
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer server.SyncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := &server.Metrics{}
	sprites := server.NewSpritePool(cfg.Sprites)
	reg := server.NewRegistry(cfg.Game, sprites, metrics)
	rate := server.NewBroadcastRate(cfg.Broadcast.MinInterval)

	ln, err := server.Listen(ctx, cfg, reg, sprites, metrics)
	if err != nil {
		server.Log.Errorf("%v", err)
		return 1
	}
	game := server.NewGame(cfg, reg, ln, rate, metrics)
	op := server.NewOperator(os.Stdin, os.Stdout)

	var admin *http.Server
	if cfg.Admin.Addr != "" {
		admin = &http.Server{
			Addr:    cfg.Admin.Addr,
			Handler: server.NewAdmin(cfg, game, reg, rate, metrics).Handler(),
		}
		go func() {
			server.Log.Infof("admin listening on http://%s/", cfg.Admin.Addr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				server.Log.Warnf("admin: %v", err)
			}
		}()
	}

	op.Banner(ln.Addr().String())
	ln.Serve()

	res, err := game.Run(ctx, op)
	op.Announce(res)

	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = admin.Shutdown(sctx)
		cancel()
	}
	if err != nil {
		server.Log.Errorf("%v", err)
		return 1
	}
	return 0
}
