package service

// NotFoundError covers missing or invisible products, carts, lines, and
// orders. Surfaced as 404.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ForbiddenError covers missing ownership relationships and attempts to
// mutate a validated order. Surfaced as 403.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ValidationError covers client-fixable input problems, with per-field
// detail. Surfaced as 422.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrProductNotFound         = &NotFoundError{Message: "Product not found"}
	ErrCartNotFound            = &NotFoundError{Message: "Cart not found"}
	ErrCartNotFoundOrValidated = &NotFoundError{Message: "Cart not found or already validated"}
	ErrLineNotFound            = &NotFoundError{Message: "Product not found in cart"}
	ErrNoOrdersToValidate      = &NotFoundError{Message: "No orders to validate"}
	ErrNoActiveCart            = &NotFoundError{Message: "No active cart"}
	ErrOrderNotFound           = &NotFoundError{Message: "Order not found"}

	ErrNotAuthorized  = &ForbiddenError{Message: "Not authorized"}
	ErrValidatedOrder = &ForbiddenError{Message: "Cannot modify a validated order"}
)

func errInsufficientStock() *ValidationError {
	return &ValidationError{
		Message: "Validation error",
		Fields:  map[string][]string{"quantity": {"Insufficient stock for the requested quantity"}},
	}
}

func errUnknownRegion(field string) *ValidationError {
	return &ValidationError{
		Message: "Validation error",
		Fields:  map[string][]string{field: {"The selected " + field + " is invalid"}},
	}
}

func errInvalidStatus() *ValidationError {
	return &ValidationError{
		Message: "Validation error",
		Fields:  map[string][]string{"status": {"The selected status is invalid"}},
	}
}
