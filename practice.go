package main

import (
	"context"
	"fmt"

	"github.com/Seednode/partyline/loopback"
	"github.com/skip2/go-qrcode"
)

func runPractice(ctx context.Context, cfg *Config) error {
	log, err := newLogger(cfg.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv := loopback.NewServer(loopback.Options{
		Bind:           cfg.bind,
		Port:           cfg.port,
		SessionTimeout: cfg.sessionTimeout,
		Profile:        cfg.profile,
	}, log)

	base := fmt.Sprintf("http://%s:%d", cfg.bind, cfg.port)
	fmt.Printf("Practice server listening on %s\n", base)

	qr, err := qrcode.New(base, qrcode.Medium)
	if err == nil {
		fmt.Println(qr.ToSmallString(false))
	}

	fmt.Printf("Host a game with: partyline host --server %s\n", base)

	return srv.Serve(ctx)
}
