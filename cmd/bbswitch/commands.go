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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/response"
)

func runInit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.svc.ListCollections(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s: %d bar(s), current %q\n", cfg.Store.Path, len(snap.Names), snap.Current)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.svc.ListCollections(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		data, err := response.MarshalCollections(snap)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	for _, name := range snap.Names {
		marker := " "
		if name == snap.Current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, name)
	}
	return nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.Select(cmd.Context(), args[0]); err != nil {
		return errors.New(response.Message(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Now showing %q\n", args[0])
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.CreateCollection(cmd.Context(), args[0]); err != nil {
		return errors.New(response.Message(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %q\n", args[0])
	return nil
}

func runItems(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	reg := a.svc.Registry()
	folderID := reg.SlotID()
	if len(args) == 1 && args[0] != reg.Current() {
		id, ok := reg.FindFolder(args[0])
		if !ok {
			return fmt.Errorf("no bar named %q", args[0])
		}
		folderID = id
	}

	items, err := a.store.ListChildren(ctx, folderID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, n := range items {
		if n.IsFolder() {
			fmt.Fprintf(out, "%s/\n", n.Title)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", n.Title, n.URL)
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.CreateNode(cmd.Context(), a.svc.Registry().SlotID(), args[0], args[1])
	if err != nil {
		return err
	}
	logger.Debug("bookmark added", zap.String("id", n.ID), zap.String("title", n.Title))
	fmt.Fprintf(cmd.OutOrStdout(), "Added %q to %q\n", args[0], a.svc.Registry().Current())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	logger.Info("watching for bookmark edits", zap.String("db", cfg.Store.Path))
	err = a.svc.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("watch stopped")
		return nil
	}
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.store.Export()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	return os.WriteFile(args[0], data, 0644)
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Import(data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s into %s\n", args[0], cfg.Store.Path)
	return nil
}
