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

	"buddiesfinder/internal/config"
	"buddiesfinder/internal/factory"
	"buddiesfinder/internal/handler"
	"buddiesfinder/internal/util"
)

func main() {
	// Initialize factory (which loads config and connects all backends)
	f, err := factory.NewFactory(context.Background())
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	router := setupRouter(f)

	serverAddr := cfg.GetServerAddress()
	if cfg.Server.EnableTLS {
		serverAddr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
	}

	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var challenge *http.Server
	if cfg.Server.EnableTLS {
		tlsManager := f.TLSManager()
		server.TLSConfig = tlsManager.TLSConfig()

		// ACME http-01 challenges and the https redirect share port 80
		if cfg.Server.AutoCert {
			challenge = &http.Server{
				Addr:              ":80",
				Handler:           tlsManager.HTTPChallengeHandler(nil),
				ReadHeaderTimeout: 10 * time.Second,
			}
		}
		util.Info("Starting HTTPS server",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.TLSPort),
			util.Bool("auto_cert", cfg.Server.AutoCert),
		)
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
	}

	startServer(f, server, challenge, cfg)
}

// setupRouter builds the handlers over the service factory and mounts them
// on the Chi router.
func setupRouter(f *factory.Factory) http.Handler {
	cfg := f.Config()
	services := f.ServiceFactory()
	sessions := f.Sessions()
	logger := util.Get()

	handlers := handler.Handlers{
		Auth:       handler.NewAuthHandler(services.AuthService(), sessions, logger),
		Profile:    handler.NewProfileHandler(services.ProfileService(), services.AuthService(), logger),
		Activities: handler.NewActivityHandler(services.ActivityService(), logger),
		Posts:      handler.NewPostHandler(services.FeedService(), logger),
		Admin:      handler.NewAdminHandler(services.AdminService(), logger),
	}

	return handler.NewRouter(handlers, sessions, handler.RouterConfig{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RequestTimeout:  cfg.Server.RequestTimeout,
		LoginRateLimit:  cfg.Security.LoginRateLimit,
		LoginRateWindow: cfg.Security.LoginRateWindow,
		RequireTLS:      cfg.Server.EnableTLS,
		HealthChecks:    f.HealthChecks(),
	}, logger)
}

func startServer(f *factory.Factory, server, challenge *http.Server, cfg *config.Config) {
	if challenge != nil {
		go func() {
			util.Info("Starting ACME challenge server on port 80")
			if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				util.Error("ACME challenge server failed", util.ErrorField(err))
			}
		}()
	}

	go func() {
		var err error
		if cfg.Server.EnableTLS {
			// certificates come from TLSConfig().GetCertificate
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server, challenge)
}

func waitForShutdown(f *factory.Factory, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
	f.Close()
}
