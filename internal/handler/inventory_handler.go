package handler

import (
	"errors"
	"time"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/service"
	"go-stock-ledger/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type InventoryHandler struct {
	coordinator *service.Coordinator
}

func NewInventoryHandler(c *service.Coordinator) *InventoryHandler {
	return &InventoryHandler{coordinator: c}
}

// identityFrom extracts the caller set by the auth middleware.
func identityFrom(c *fiber.Ctx) service.Identity {
	id := service.Identity{UserID: "system"}
	if userID, ok := c.Locals("user_id").(string); ok {
		id.UserID = userID
	}
	if roles, ok := c.Locals("user_roles").([]string); ok {
		id.Roles = roles
	}
	return id
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrInsufficientStock),
		errors.Is(err, apperr.ErrInvalidState),
		errors.Is(err, apperr.ErrConcurrentModification):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrPoolExhausted):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func keyFromQuery(c *fiber.Ctx) (model.StockKey, error) {
	var key model.StockKey
	var err error
	if key.ProductID, err = uuid.Parse(c.Query("product_id")); err != nil {
		return key, err
	}
	if key.WarehouseID, err = uuid.Parse(c.Query("warehouse_id")); err != nil {
		return key, err
	}
	if key.LocationID, err = uuid.Parse(c.Query("location_id")); err != nil {
		return key, err
	}
	return key, nil
}

// ---- mutations ----

func (h *InventoryHandler) RecordReceipt(c *fiber.Ctx) error {
	var in service.ReceiptInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	txn, err := h.coordinator.RecordGoodsReceipt(c.UserContext(), identityFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Receipt recorded", "data": txn})
}

func (h *InventoryHandler) RecordIssue(c *fiber.Ctx) error {
	var in service.IssueInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	txn, err := h.coordinator.RecordGoodsIssue(c.UserContext(), identityFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Issue recorded", "data": txn})
}

func (h *InventoryHandler) AdjustInventory(c *fiber.Ctx) error {
	var in service.AdjustmentInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	txn, err := h.coordinator.AdjustInventory(c.UserContext(), identityFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Adjustment recorded", "data": txn})
}

func (h *InventoryHandler) ReserveInventory(c *fiber.Ctx) error {
	var in service.ReservationInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	txn, err := h.coordinator.ReserveInventory(c.UserContext(), identityFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Reservation recorded", "data": txn})
}

func (h *InventoryHandler) UnreserveInventory(c *fiber.Ctx) error {
	var in service.ReservationInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	txn, err := h.coordinator.UnreserveInventory(c.UserContext(), identityFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Unreservation recorded", "data": txn})
}

func (h *InventoryHandler) TransferStock(c *fiber.Ctx) error {
	var in service.TransferInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	result, err := h.coordinator.TransferStock(c.UserContext(), identityFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"message": "Transfer recorded", "data": result})
}

// ---- reads ----

func (h *InventoryHandler) GetRecord(c *fiber.Ctx) error {
	key, err := keyFromQuery(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid stock key"})
	}
	rec, err := h.coordinator.GetByKey(c.UserContext(), key)
	if err != nil {
		return fail(c, err)
	}
	layers, err := h.coordinator.OpenLayers(c.UserContext(), key)
	if err != nil {
		return fail(c, err)
	}
	valuation, err := h.coordinator.Valuation(c.UserContext(), key)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"record": rec, "open_layers": layers, "valuation": valuation})
}

func (h *InventoryHandler) GetRecords(c *fiber.Ctx) error {
	var filter store.RecordFilter
	if raw := c.Query("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
		}
		filter.ProductID = id
	}
	if raw := c.Query("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid warehouse ID"})
		}
		filter.WarehouseID = id
	}
	if raw := c.Query("location_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid location ID"})
		}
		filter.LocationID = id
	}
	records, err := h.coordinator.GetAllFiltered(c.UserContext(), filter)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(records)
}

func (h *InventoryHandler) GetRecordsByProduct(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}
	records, err := h.coordinator.GetByProduct(c.UserContext(), productID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(records)
}

func (h *InventoryHandler) GetLowStock(c *fiber.Ctx) error {
	records, err := h.coordinator.GetBelowReorder(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(records)
}

func (h *InventoryHandler) GetTransactions(c *fiber.Ctx) error {
	var filter store.TxnFilter
	if raw := c.Query("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
		}
		filter.ProductID = id
	}
	if raw := c.Query("warehouse_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid warehouse ID"})
		}
		filter.WarehouseID = id
	}
	if raw := c.Query("type"); raw != "" {
		filter.Type = model.TransactionType(raw)
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid 'from' timestamp, use RFC3339"})
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid 'to' timestamp, use RFC3339"})
		}
		filter.To = &t
	}
	filter.Limit = c.QueryInt("limit", 100)

	txns, err := h.coordinator.QueryTransactions(c.UserContext(), filter)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(txns)
}
