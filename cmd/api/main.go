package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-stock-ledger/internal/audit"
	"go-stock-ledger/internal/auth"
	"go-stock-ledger/internal/catalog"
	"go-stock-ledger/internal/handler"
	"go-stock-ledger/internal/middleware"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/store"
	"go-stock-ledger/internal/store/gormstore"
	"go-stock-ledger/internal/store/memstore"
	"go-stock-ledger/internal/ws"
	"go-stock-ledger/pkg/database"
	"go-stock-ledger/pkg/jwt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// 2. Setup WebSocket Hub
	wsHub := ws.NewHub()
	go wsHub.Run()

	// 3. Storage + collaborators: Postgres when configured, in-memory
	// otherwise (dev/demo mode).
	var (
		ledgerStore store.Store
		gate        service.PermissionGate
		catalogRead service.CatalogReader
		auditDB     *gorm.DB
	)
	if os.Getenv("DATABASE_URL") != "" || os.Getenv("DB_HOST") != "" {
		db, err := database.ConnectDB()
		if err != nil {
			log.Fatal(err)
		}
		// Auto Migrate (use a dedicated migration tool in production)
		if err := db.AutoMigrate(
			&model.InventoryRecord{}, &model.InventoryTransaction{}, &model.CostLayer{},
			&model.Product{}, &model.Warehouse{}, &model.Location{},
			&model.AuditLog{}, &model.Privilege{}, &model.Role{},
		); err != nil {
			log.Fatal("Auto migration failed: ", err)
		}
		if err := auth.SeedDefaults(db); err != nil {
			log.Printf("Warning: Failed to seed roles and privileges: %v", err)
		}
		dbGate, err := auth.NewGate(db)
		if err != nil {
			log.Fatal("Failed to load permission gate: ", err)
		}
		gate = dbGate
		catalogRead = catalog.NewReader(db)
		ledgerStore = gormstore.New(db, gormstore.WithAcquireTimeout(acquireTimeout()))
		auditDB = db
	} else {
		log.Println("No database configured, using in-memory store (dev mode)")
		gate = auth.NewStaticGate(model.DefaultRolePrivileges)
		catalogRead = seedDemoCatalog()
		ledgerStore = memstore.New()
		announceDevToken()
	}

	auditSink := audit.NewSink(auditDB, wsHub)

	// 4. Dependency Injection (Wiring Layers)
	coordinator := service.NewCoordinator(ledgerStore, gate, auditSink, catalogRead)
	invHandler := handler.NewInventoryHandler(coordinator)

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: "Stock Ledger v1.0",
	})

	// Middleware
	app.Use(logger.New())  // Logging request
	app.Use(recover.New()) // Panic recovery
	app.Use(cors.New())    // CORS

	// 6. Routes
	api := app.Group("/api/v1", middleware.RequireAuth())

	// Stock state reads
	api.Get("/records", invHandler.GetRecords)
	api.Get("/records/key", invHandler.GetRecord)
	api.Get("/records/low-stock", invHandler.GetLowStock)
	api.Get("/products/:id/records", invHandler.GetRecordsByProduct)
	api.Get("/transactions", invHandler.GetTransactions)

	// Stock mutations (authorized inside the coordinator)
	api.Post("/receipts", invHandler.RecordReceipt)
	api.Post("/issues", invHandler.RecordIssue)
	api.Post("/adjustments", invHandler.AdjustInventory)
	api.Post("/reservations", invHandler.ReserveInventory)
	api.Post("/unreservations", invHandler.UnreserveInventory)
	api.Post("/transfers", invHandler.TransferStock)

	// WebSocket Route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHub.Register(c)
		defer wsHub.Unregister(c)

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	// 7. Graceful Shutdown
	go func() {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3000"
		}
		if err := app.Listen(":" + port); err != nil {
			log.Panic(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func acquireTimeout() time.Duration {
	if raw := os.Getenv("DB_ACQUIRE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
		log.Printf("Warning: invalid DB_ACQUIRE_TIMEOUT %q, using default", raw)
	}
	return 5 * time.Second
}

// seedDemoCatalog builds a small static catalog so dev mode has something to
// move stock against. The generated ids are logged for use in requests.
func seedDemoCatalog() *catalog.Static {
	productID := uuid.New()
	warehouseID := uuid.New()
	receivingID := uuid.New()
	pickingID := uuid.New()

	log.Printf("Demo catalog: product=%s warehouse=%s locations=[%s %s]",
		productID, warehouseID, receivingID, pickingID)

	return catalog.NewStatic().
		AddProduct(productID).
		AddWarehouse(warehouseID).
		AddLocation(receivingID).
		AddLocation(pickingID)
}

// announceDevToken prints a ready-to-use bearer token for dev mode.
func announceDevToken() {
	token, err := jwt.GenerateToken("dev-user", "Dev User", []string{model.RoleWarehouseManager})
	if err != nil {
		log.Printf("Warning: failed to generate dev token: %v", err)
		return
	}
	log.Printf("Dev token (WAREHOUSE_MANAGER): %s", token)
}
