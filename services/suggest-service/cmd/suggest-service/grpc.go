package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/slotsuggest/libs/config"
	"github.com/md-rashed-zaman/slotsuggest/libs/grpcx"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/grpcserver"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, maxSlots, maxSpanDays int) error {
	port, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger)
	hs := grpcserver.Register(srv, maxSlots, maxSpanDays)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}
