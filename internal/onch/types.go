// Package onch defines core types shared across subsystems.
package onch

import (
	"encoding/json"
	"time"
)

// JobState represents the lifecycle state of a queued job.
type JobState string

// Job states tracked by the work queue.
const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Job is the unit of queued asynchronous work.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Task         string          `json:"task"`
	Payload      RequestPayload  `json:"payload"`
	State        JobState        `json:"state"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Backoff      time.Duration   `json:"backoff_ns"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorText    string          `json:"error_text,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Request is the inbound bus envelope.
type Request struct {
	Pattern string         `json:"pattern"`
	Payload RequestPayload `json:"payload"`
}

// RequestPayload carries per-request routing data plus a pattern-specific body.
type RequestPayload struct {
	JobID   string          `json:"jobId"`
	JobType string          `json:"jobType,omitempty"`
	Store   string          `json:"store"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is the outbound envelope returned for every dispatch.
type Response struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recognized dispatch patterns.
const (
	PatternClearCatalog      = "clearCatalog"
	PatternDeleteProducts    = "deleteProducts"
	PatternCrawlSoldout      = "crawlOnchSoldoutProducts"
	PatternCrawlRegistered   = "crawlOnchRegisteredProducts"
	PatternPlaceOrders       = "placeOrders"
	PatternExtractDeliveries = "extractDeliveries"
	PatternRegisterProducts  = "registerProducts"
	PatternQueueStatus       = "queueStatus"
	PatternQueueJobs         = "queueJobs"
	PatternRemoveJob         = "removeJob"
	PatternRetryJob          = "retryJob"
)

// ProductItem is one selectable option of a supplier product.
type ProductItem struct {
	ItemName      string `json:"itemName"`
	ConsumerPrice int    `json:"consumerPrice"`
	SellerPrice   int    `json:"sellerPrice"`
}

// ProductRecord is produced by catalog detail extraction and persisted in
// batches. productCode identifies it; upsert semantics belong to the sink.
type ProductRecord struct {
	ProductCode   string        `json:"productCode"`
	ConsumerPrice int           `json:"consumerPrice"`
	SellerPrice   int           `json:"sellerPrice"`
	ShippingCost  int           `json:"shippingCost"`
	Items         []ProductItem `json:"items,omitempty"`
}

// SoldoutRecord is one row of the supplier's sold-out board. The product code
// may arrive in a dedicated column or embedded in the post title.
type SoldoutRecord struct {
	ProductCode string    `json:"productCode,omitempty"`
	Title       string    `json:"title"`
	PostedAt    time.Time `json:"postedAt"`
}

// Receiver holds the shipping destination for an order.
type Receiver struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Postcode      string `json:"postcode"`
	Address       string `json:"address"`
	AddressDetail string `json:"addressDetail,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

// OrderItem is one line of an order request.
type OrderItem struct {
	ProductCode string `json:"productCode"`
	OptionName  string `json:"optionName"`
	Quantity    int    `json:"quantity"`
}

// OrderRequest asks the automation engine to place one supplier order.
type OrderRequest struct {
	OrderID  string      `json:"orderId"`
	Receiver Receiver    `json:"receiver"`
	Items    []OrderItem `json:"items"`
}

// OrderStatus is the terminal outcome of one order item.
type OrderStatus string

// Order item outcomes.
const (
	OrderSuccess OrderStatus = "success"
	OrderFailed  OrderStatus = "failed"
)

// OrderResult records the outcome of one order item. It is computed once and
// appended; a failed item never aborts its siblings.
type OrderResult struct {
	OrderID     string      `json:"orderId"`
	ProductCode string      `json:"productCode"`
	OptionName  string      `json:"optionName,omitempty"`
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

// DeliveryRecord is one shipping/waybill table row, in page traversal order.
type DeliveryRecord struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	State          string `json:"state"`
	PaymentMethod  string `json:"paymentMethod"`
	Courier        string `json:"courier"`
	TrackingNumber string `json:"trackingNumber"`
}

// RegistrationPageResult is the outcome of one bulk-registration page attempt.
type RegistrationPageResult struct {
	Page         int    `json:"page"`
	Success      bool   `json:"success"`
	AlertMessage string `json:"alertMessage,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// RegistrationSummary aggregates per-page counts parsed from the site's
// confirmation messages.
type RegistrationSummary struct {
	Pages             int  `json:"pages"`
	Registered        int  `json:"registered"`
	Failed            int  `json:"failed"`
	Duplicates        int  `json:"duplicates"`
	AlreadyRegistered int  `json:"alreadyRegistered"`
	DailyLimitReached bool `json:"dailyLimitReached"`
}
