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

	"github.com/spf13/cobra"

	"moblaw.ru/legal-assistant/internal/api"
	"moblaw.ru/legal-assistant/internal/clients/greenapi"
	"moblaw.ru/legal-assistant/internal/clients/redis"
	"moblaw.ru/legal-assistant/internal/clients/yandexgpt"
	"moblaw.ru/legal-assistant/internal/config"
	"moblaw.ru/legal-assistant/internal/core"
	"moblaw.ru/legal-assistant/internal/index"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.log

	var completer core.Completer = a.llm
	if cfg.LLMProvider == config.LLMProviderYandex {
		completer, err = yandexgpt.New(log, yandexgpt.Config{
			FolderID:      cfg.YandexFolderID,
			Authorization: cfg.YandexAuthorization,
			Timeout:       cfg.LLMTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize YandexGPT client: %w", err)
		}
	}

	messenger, err := greenapi.New(log, greenapi.Config{
		IDInstance: cfg.GreenIDInstance,
		APIToken:   cfg.GreenAPIToken,
		BaseURL:    cfg.GreenAPIURL,
		Timeout:    cfg.MessagingTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Green API client: %w", err)
	}
	if cfg.OperatorChatID == "" {
		log.Warn("WHATSAPP_CHAT_ID is not set; escalations only reach sessions with a recorded chat")
	}

	var dedup core.Deduper
	if cfg.RedisAddr != "" {
		d, err := redis.NewDeduper(log, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to initialize webhook deduplication: %w", err)
		}
		defer closeQuietly(log, "redis", d)
		dedup = d
	} else {
		log.Info("REDIS_ADDR not set, webhook deduplication disabled")
	}

	if sqliteIndex, ok := a.index.(*index.SQLiteIndex); ok {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go sqliteIndex.ReloadOnSignal(ctx, hup)
	}

	ragService := core.NewRAGService(a.llm, a.index, log)
	fallback := core.NewFallbackGenerator(completer, cfg.LLMTimeout, log)
	escalation := core.NewEscalationService(
		a.store,
		core.NewSessionChannelResolver(a.store, cfg.OperatorChatID),
		messenger,
		cfg.MessagingTimeout,
		log,
	)
	chatService := core.NewChatService(a.store, ragService, fallback, escalation, log)
	replies := core.NewOperatorReplyService(a.store, dedup, cfg.OperatorChatID, log)

	apiHandler := api.NewAPIHandler(chatService, replies, cfg.ClientSourceAllow, log)
	router := api.NewRouter(apiHandler, log, api.RouterOptions{
		StaticDir:   cfg.StaticDir,
		CORSOrigins: cfg.CORSOrigins,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + cfg.MessagingTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", serverAddr, "llm_provider", cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exiting gracefully")
	return nil
}
