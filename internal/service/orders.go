package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/uvalib/tracksys2/internal/poller"
)

// Customer is an order's customer.
type Customer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Agency is an order's billing agency.
type Agency struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type nullFloat struct {
	Float64 float64 `json:"Float64"`
	Valid   bool    `json:"Valid"`
}

type orderRecord struct {
	ID                    int64      `json:"id"`
	Status                string     `json:"status"`
	Title                 string     `json:"title"`
	DateDue               time.Time  `json:"dateDue"`
	DateSubmitted         time.Time  `json:"dateSubmitted"`
	DateCustomerNotified  *time.Time `json:"dateCustomerNotified"`
	DateArchivingComplete *time.Time `json:"dateArchivingComplete"`
	Fee                   nullFloat  `json:"fee"`
	Customer              Customer   `json:"customer"`
	Agency                Agency     `json:"agency"`
	UnitCount             int64      `json:"unitCount"`
	MasterFileCount       int64      `json:"masterFileCount"`
	Email                 string     `json:"email"`
	StaffNotes            string     `json:"staffNotes"`
}

// Order is an order as shown in lists and detail pages.
type Order struct {
	ID                    int64  `json:"id"`
	Status                string `json:"status"`
	Title                 string `json:"title"`
	DateDue               string `json:"dateDue"`
	DateSubmitted         string `json:"dateSubmitted"`
	DateCustomerNotified  string `json:"dateCustomerNotified,omitempty"`
	DateArchivingComplete string `json:"dateArchivingComplete,omitempty"`
	Fee                   string `json:"fee,omitempty"`
	CustomerName          string `json:"customerName"`
	Agency                string `json:"agency,omitempty"`
	UnitCount             int64  `json:"unitCount"`
	MasterFileCount       int64  `json:"masterFileCount"`
	Email                 string `json:"email,omitempty"`
	StaffNotes            string `json:"staffNotes,omitempty"`
}

const dateLayout = "2006-01-02"

func (r orderRecord) view() Order {
	o := Order{
		ID:              r.ID,
		Status:          r.Status,
		Title:           r.Title,
		DateDue:         formatDate(&r.DateDue),
		DateSubmitted:   formatDate(&r.DateSubmitted),
		CustomerName:    fmt.Sprintf("%s, %s", r.Customer.LastName, r.Customer.FirstName),
		Agency:          r.Agency.Name,
		UnitCount:       r.UnitCount,
		MasterFileCount: r.MasterFileCount,
		Email:           r.Email,
		StaffNotes:      r.StaffNotes,
	}
	o.DateCustomerNotified = formatDate(r.DateCustomerNotified)
	o.DateArchivingComplete = formatDate(r.DateArchivingComplete)
	if r.Fee.Valid {
		o.Fee = "$" + strconv.FormatFloat(r.Fee.Float64, 'f', -1, 64)
	}
	return o
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// OrderSearch is the order list query.
type OrderSearch struct {
	Start     int
	Limit     int
	Filter    string
	SortField string
	SortOrder string
	Query     string
}

func (q OrderSearch) withDefaults() OrderSearch {
	if q.Limit <= 0 {
		q.Limit = 30
	}
	if q.Start < 0 {
		q.Start = 0
	}
	if q.Filter == "" {
		q.Filter = "active"
	}
	if q.SortField == "" {
		q.SortField = "id"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
	return q
}

// OrderPage is one page of orders.
type OrderPage struct {
	Orders []Order     `json:"orders"`
	Total  int64       `json:"total"`
	Search OrderSearch `json:"-"`
}

// OrderUnit is a unit listed on an order.
type OrderUnit struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	MetadataTitle   string `json:"metadataTitle"`
	MasterFileCount int64  `json:"masterFilesCount"`
}

// OrderDetails is an order with its units.
type OrderDetails struct {
	Order Order       `json:"order"`
	Units []OrderUnit `json:"units"`
}

// OrdersStoreOptions groups dependencies for OrdersStore.
type OrdersStoreOptions struct {
	Deps      StoreDeps
	Poll      PollOptions
	Extractor *poller.StatusExtractor // Required: reads /api/jobs/:id
}

// OrdersStore lists and shows orders and runs the order check job.
type OrdersStore struct {
	deps   StoreDeps
	jobs   jobWatch
	logger *slog.Logger
	check  poller.Slot

	mu     sync.Mutex
	search OrderSearch
}

// NewOrdersStore constructs an OrdersStore.
func NewOrdersStore(opts OrdersStoreOptions) *OrdersStore {
	opts.Deps.validate("OrdersStore")
	if opts.Extractor == nil {
		//nolint:forbidigo // Store construction must fail fast during wiring when dependencies are missing
		panic("OrdersStore: Extractor is required")
	}
	logger := resolveLogger(opts.Deps.Logger).With("store", "orders")
	return &OrdersStore{
		deps:   opts.Deps,
		logger: logger,
		search: OrderSearch{}.withDefaults(),
		jobs: jobWatch{
			deps:      opts.Deps,
			poll:      opts.Poll,
			extractor: opts.Extractor,
			logger:    logger,
		},
	}
}

// List fetches a page of orders and remembers the query.
func (s *OrdersStore) List(ctx context.Context, q OrderSearch) (OrderPage, error) {
	q = q.withDefaults()
	v := url.Values{}
	v.Set("filter", q.Filter)
	v.Set("start", strconv.Itoa(q.Start))
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("by", q.SortField)
	v.Set("order", q.SortOrder)
	if q.Query != "" {
		v.Set("q", q.Query)
	}

	s.deps.System.SetWorking(true)
	var resp struct {
		Orders []orderRecord `json:"orders"`
		Total  int64         `json:"total"`
	}
	if err := s.deps.Backend.GetJSON(ctx, "/api/orders?"+v.Encode(), &resp); err != nil {
		s.deps.System.SetError(err)
		return OrderPage{}, err
	}
	s.deps.System.SetWorking(false)

	page := OrderPage{Orders: make([]Order, 0, len(resp.Orders)), Total: resp.Total, Search: q}
	for _, r := range resp.Orders {
		page.Orders = append(page.Orders, r.view())
	}

	s.mu.Lock()
	s.search = q
	s.mu.Unlock()
	return page, nil
}

// Search returns the last list query.
func (s *OrdersStore) Search() OrderSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search
}

// GetDetails loads one order.
func (s *OrdersStore) GetDetails(ctx context.Context, id int64) (OrderDetails, error) {
	s.deps.System.SetWorking(true)
	var resp struct {
		Order orderRecord `json:"order"`
		Units []OrderUnit `json:"units"`
	}
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/orders/%d", id), &resp); err != nil {
		return OrderDetails{}, detailFailed(s.deps, err)
	}
	s.deps.System.SetWorking(false)
	return OrderDetails{Order: resp.Order.view(), Units: resp.Units}, nil
}

// Check runs the jobs service order check. It reports false while a check
// is already running.
func (s *OrdersStore) Check(ctx context.Context, id int64) bool {
	return s.jobs.start(ctx, &s.check, jobOperation{
		name: "order_check",
		path: fmt.Sprintf("/orders/%d/check", id),
		onSuccess: func(context.Context) {
			s.deps.System.Toast(ToastSuccess, fmt.Sprintf("Order %d check complete", id))
		},
	})
}

// CheckInProgress reports whether an order check is running.
func (s *OrdersStore) CheckInProgress() bool {
	return s.check.Busy()
}

// Cancel stops an in-flight check poll.
func (s *OrdersStore) Cancel() {
	s.check.Cancel()
}
