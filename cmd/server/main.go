package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"rulemaker-backend/internal/api"
	"rulemaker-backend/internal/chat"
	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/config"
	"rulemaker-backend/internal/instrument"
	"rulemaker-backend/internal/session"
	"rulemaker-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect the session journal
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Journal database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Instrumentation
	var inst instrument.Instrumenter = instrument.Noop{}
	if cfg.Instrumentation.Enabled {
		di := instrument.NewDBInstrumenter(db, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer di.Stop()
		inst = di
	}

	// 5. Collaborator clients
	engine := collab.NewRuleEngineClient(cfg.RuleEngine.BaseURL, cfg.Collab.RequestTimeout())
	decision := collab.NewDecisionClient(cfg.Decision.BaseURL, cfg.Collab.RequestTimeout(), cfg.Collab.TranslateTimeout())

	// 6. Session registry and workflow service
	reg := session.NewRegistry(cfg.Session.TTL())
	defer reg.Stop()
	svc := chat.NewService(reg, engine, decision, db, inst)

	// 7. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Gateway routes
	handler := api.NewHandler(svc, cfg.Session.TokenSecret, cfg.Session.TTL())
	api.RegisterRoutes(app, handler)

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
