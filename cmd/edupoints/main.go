package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/handlers"
	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/middleware"
	"github.com/edupoints/edupoints/internal/storage"
	"github.com/edupoints/edupoints/internal/workers"
)

func main() {
	config.ParseFlags()

	if err := logger.Initialize(config.LogLevel); err != nil {
		logger.Log.Fatal("Failed to initialize logger", zap.Error(err))
	}

	if err := storage.Init(); err != nil {
		logger.Log.Error("Failed to init storage", zap.Error(err))
		return
	}

	workers.InitLapseSweeper()

	if err := run(); err != nil {
		logger.Log.Fatal("Failed to run server", zap.Error(err))
	}
}

func run() error {
	app := fiber.New()
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
	}))

	app.Post("/api/register", handlers.RegisterHandler)
	app.Post("/api/login", handlers.LoginHandler)

	api := app.Group("/api", middleware.AuthMiddleware)

	// Donor surface.
	api.Post("/donor/payments", handlers.ConfirmPaymentHandler)
	api.Get("/donor/sponsorships", handlers.GetSponsorshipsHandler)
	api.Post("/donor/sponsorships", handlers.CreateSponsorshipHandler)
	api.Post("/donor/sponsorships/:id/opt-out", handlers.RequestOptOutHandler)
	api.Post("/donor/sponsorships/:id/cancel-opt-out", handlers.CancelOptOutHandler)
	api.Get("/donor/profile", handlers.DonorProfileHandler)
	api.Get("/students/available", handlers.AvailableStudentsHandler)

	// Student surface.
	api.Get("/student/balance", handlers.GetBalanceHandler)
	api.Get("/student/transactions", handlers.GetTransactionsHandler)
	api.Get("/student/orders", handlers.GetOrdersHandler)
	api.Post("/student/orders", handlers.CheckoutHandler)
	api.Post("/student/orders/:id/cancel", handlers.CancelOrderHandler)
	api.Get("/student/investments", handlers.GetInvestmentsHandler)
	api.Get("/student/policies", handlers.GetPoliciesHandler)
	api.Get("/student/withdrawals", handlers.GetWithdrawalsHandler)
	api.Post("/student/withdrawals", handlers.WithdrawHandler)
	api.Get("/catalog", handlers.GetCatalogHandler)

	// Administrative surface.
	admin := api.Group("/admin", middleware.AdminOnly)
	admin.Get("/orders/pending", handlers.PendingOrdersHandler)
	admin.Post("/orders/fulfill", handlers.FulfillOrderHandler)
	admin.Post("/orders/:id/approve", handlers.ApproveOrderHandler)
	admin.Post("/orders/:id/reject", handlers.RejectOrderHandler)
	admin.Post("/withdrawals/:id/process", handlers.ProcessWithdrawalHandler)
	admin.Post("/withdrawals/:id/reject", handlers.RejectWithdrawalHandler)
	admin.Post("/adjustments", handlers.AdjustmentHandler)
	admin.Post("/allocations", handlers.TriggerAllocationHandler)
	admin.Post("/sponsorships/:id/force-remove", handlers.ForceRemoveSponsorshipHandler)
	admin.Get("/students/:id/reconciliation", handlers.ReconcileStudentHandler)
	admin.Post("/students/:id/approve", handlers.ApproveStudentHandler)
	admin.Post("/students/:id/reject", handlers.RejectStudentHandler)
	admin.Post("/investments", handlers.OpenInvestmentHandler)
	admin.Post("/investments/:id/complete", handlers.CompleteInvestmentHandler)
	admin.Post("/policies", handlers.IssuePolicyHandler)
	admin.Post("/policies/:id/expire", handlers.ExpirePolicyHandler)
	admin.Post("/catalog", handlers.UpsertCatalogItemHandler)

	logger.Log.Info("Running server", zap.String("address", config.RunAddress))
	return app.Listen(config.RunAddress)
}
