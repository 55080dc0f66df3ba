package reservation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopcore/stockhold/internal/domain/stock"
	"go.uber.org/zap"
)

// AvailabilityChecker is the read side of the Manager used by the Validator
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, sku stock.SKU, quantity int64) (*Availability, error)
}

// Validator checks carts and batches against current availability without
// mutating any reservation or ledger state.
type Validator struct {
	checker    AvailabilityChecker
	catalog    stock.Catalog
	cartReader stock.CartReader
	logger     *zap.Logger
	now        func() time.Time
}

// NewValidator creates a new Validator. catalog and cartReader may be nil:
// without a catalog only stock records are consulted, and without a cart
// reader ValidateStoredCart is unavailable.
func NewValidator(checker AvailabilityChecker, catalog stock.Catalog, cartReader stock.CartReader, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		checker:    checker,
		catalog:    catalog,
		cartReader: cartReader,
		logger:     logger,
		now:        time.Now,
	}
}

// ValidateCart checks every line of a cart. Lines for the same SKU are summed
// before checking, and every line gets an item reporting the result for its
// SKU. Only infrastructure failures are returned as an error; problems with
// the cart itself are reported in the result.
func (v *Validator) ValidateCart(ctx context.Context, lines []stock.CartLine) (*CartValidation, error) {
	result := &CartValidation{
		Items:     make([]CartItemResult, len(lines)),
		Errors:    make([]CartIssue, 0),
		Warnings:  make([]CartIssue, 0),
		CheckedAt: v.now(),
		Notice:    SnapshotNotice,
	}

	if len(lines) == 0 {
		result.Errors = append(result.Errors, CartIssue{
			Line:    -1,
			Code:    IssueEmptyCart,
			Message: "Cart has no lines",
		})
		return result, nil
	}

	type merged struct {
		lines    []int
		quantity int64
	}
	order := make([]stock.SKU, 0, len(lines))
	totals := make(map[stock.SKU]*merged, len(lines))

	for i, line := range lines {
		item := &result.Items[i]
		*item = CartItemResult{Line: i, SKU: line.SKU, RequestedQuantity: line.Quantity}

		if line.SKU.IsZero() {
			item.Issue = IssueInvalidSKU
			result.Errors = append(result.Errors, CartIssue{
				Line: i, Code: IssueInvalidSKU, Message: "Line has no product identifier",
			})
			continue
		}
		if line.Quantity <= 0 {
			item.Issue = IssueInvalidQuantity
			result.Errors = append(result.Errors, CartIssue{
				Line: i, SKU: line.SKU, Code: IssueInvalidQuantity, Requested: line.Quantity,
				Message: "Quantity must be a positive integer",
			})
			continue
		}
		existing, ok := totals[line.SKU]
		if !ok {
			totals[line.SKU] = &merged{lines: []int{i}, quantity: line.Quantity}
			order = append(order, line.SKU)
			continue
		}
		if existing.quantity > math.MaxInt64-line.Quantity {
			item.Issue = IssueInvalidQuantity
			result.Errors = append(result.Errors, CartIssue{
				Line: i, SKU: line.SKU, Code: IssueInvalidQuantity, Requested: line.Quantity,
				Message: fmt.Sprintf("Combined quantity with line %d is too large", existing.lines[0]),
			})
			continue
		}
		existing.quantity += line.Quantity
		existing.lines = append(existing.lines, i)
		result.Warnings = append(result.Warnings, CartIssue{
			Line: i, SKU: line.SKU, Code: IssueDuplicateSKU,
			Message: fmt.Sprintf("Duplicate of line %d, quantities were combined", existing.lines[0]),
		})
	}

	for _, sku := range order {
		entry := totals[sku]
		check, err := v.checkLine(ctx, entry.lines[0], sku, entry.quantity, result)
		if err != nil {
			return nil, err
		}
		for _, i := range entry.lines {
			result.Items[i].AvailableQuantity = check.available
			result.Items[i].CanFulfill = check.canFulfill
			result.Items[i].Issue = check.issue
		}
	}

	result.Valid = len(result.Errors) == 0
	v.logger.Debug("Cart validated",
		zap.Int("lines", len(lines)),
		zap.Bool("valid", result.Valid),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// ValidateStoredCart reads a cart through the CartReader and validates it
func (v *Validator) ValidateStoredCart(ctx context.Context, cartID string) (*CartValidation, error) {
	if v.cartReader == nil {
		return nil, stock.ErrCartNotFound
	}
	lines, err := v.cartReader.ReadCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return v.ValidateCart(ctx, lines)
}

// BatchAvailability answers every query independently. A bad entry is
// reported on its own result and never fails the batch.
func (v *Validator) BatchAvailability(ctx context.Context, queries []AvailabilityQuery) []AvailabilityResult {
	results := make([]AvailabilityResult, len(queries))
	for i, q := range queries {
		results[i] = AvailabilityResult{Index: i, SKU: q.SKU}
		availability, err := v.checker.CheckAvailability(ctx, q.SKU, q.Quantity)
		if err != nil {
			results[i].Error = NewItemError(err)
			continue
		}
		results[i].Availability = availability
	}
	return results
}

// lineCheck is the outcome of checking one merged SKU
type lineCheck struct {
	available  int64
	canFulfill bool
	issue      string
}

func (v *Validator) checkLine(ctx context.Context, line int, sku stock.SKU, quantity int64, result *CartValidation) (lineCheck, error) {
	reject := func(code, message string, available *int64) lineCheck {
		result.Errors = append(result.Errors, CartIssue{
			Line: line, SKU: sku, Code: code, Requested: quantity, Available: available,
			Message: message,
		})
		check := lineCheck{issue: code}
		if available != nil {
			check.available = *available
		}
		return check
	}

	if v.catalog != nil {
		exists, err := v.catalog.ProductExists(ctx, sku.ProductID)
		if err != nil {
			return lineCheck{}, err
		}
		if !exists {
			return reject(IssueUnknownSKU, "Product does not exist", nil), nil
		}
		active, err := v.catalog.IsActive(ctx, sku.ProductID)
		if err != nil {
			return lineCheck{}, err
		}
		if !active {
			return reject(IssueInactiveSKU, "Product is not currently sold", nil), nil
		}
	}

	availability, err := v.checker.CheckAvailability(ctx, sku, quantity)
	switch stock.KindOf(err) {
	case stock.KindNone:
	case stock.KindNotFound:
		return reject(IssueUnknownSKU, "No stock is kept for this SKU", nil), nil
	default:
		return lineCheck{}, err
	}

	available := availability.AvailableQuantity
	switch {
	case availability.Status == stock.StockStatusDiscontinued:
		return reject(IssueInactiveSKU, "SKU is discontinued", &available), nil
	case !availability.CanFulfill:
		return reject(IssueInsufficientStock, fmt.Sprintf("Only %d available", available), &available), nil
	case availability.LowStockThreshold > 0 && available-quantity <= availability.LowStockThreshold:
		result.Warnings = append(result.Warnings, CartIssue{
			Line: line, SKU: sku, Code: IssueLowStock, Requested: quantity, Available: &available,
			Message: fmt.Sprintf("Only %d left after this order", available-quantity),
		})
	}
	return lineCheck{available: available, canFulfill: true}, nil
}
