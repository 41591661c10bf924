// Package account orchestrates the creation of an account together with its
// products. Each sub-operation is a command sent through the bus resolver; a
// product failure compensates everything created before it.
package account

// Command types.
const (
	CommandCreateWithProducts = "account.createWithProducts"
	CommandCreateAccount      = "account.create"
	CommandDeleteAccount      = "account.delete"
	CommandCreateProduct      = "product.create"
	CommandDeleteProduct      = "product.delete"
)

// SagaType names the saga records written by the workflow.
const SagaType = "account.createWithProducts"

type CreateAccount struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type AccountCreated struct {
	ID string `json:"id"`
}

type DeleteAccount struct {
	ID string `json:"id"`
}

type CreateProduct struct {
	AccountID string  `json:"accountId"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

type ProductCreated struct {
	ID string `json:"id"`
}

type DeleteProduct struct {
	ID string `json:"id"`
}

// CreateWithProducts is the workflow input. SagaID makes retries resume the
// same saga instead of starting over.
type CreateWithProducts struct {
	SagaID   string          `json:"sagaId"`
	Account  CreateAccount   `json:"account"`
	Products []CreateProduct `json:"products"`
}

// Created is the workflow output. ProductIDs follow creation order.
type Created struct {
	AccountID  string   `json:"accountId"`
	ProductIDs []string `json:"productIds"`
}
