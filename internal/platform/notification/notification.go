// Package notification delivers in-app alerts to users. Delivery is
// fire-and-forget from the caller's perspective: a failed send is recorded
// and reported, never retried inline.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Categories used by the reconciliation jobs.
const (
	CategoryOrder     = "order"
	CategoryInventory = "inventory"
	CategoryExpiry    = "expiry"
)

// Priorities understood by delivery channels.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is a single outbound alert addressed to a user.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Category  string     `json:"category"`
	Priority  string     `json:"priority"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Dispatcher is the contract consumed by the domain services and the
// reconciliation scheduler.
type Dispatcher interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message, category, priority string) error
}

// Sender is a delivery channel (push, email, websocket fan-out).
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, n *Notification) error

func (f SenderFunc) Send(ctx context.Context, n *Notification) error { return f(ctx, n) }

// Broadcaster pushes a serialized notification to connected dashboard
// clients. Implemented by the websocket hub.
type Broadcaster interface {
	Publish(data []byte)
}

// Manager dispatches notifications through a Sender and keeps an in-memory
// record for inspection and stats.
type Manager struct {
	sender      Sender
	broadcaster Broadcaster

	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
}

// NewManager constructs a Manager. The broadcaster is optional.
func NewManager(sender Sender, broadcaster Broadcaster) *Manager {
	return &Manager{
		sender:        sender,
		broadcaster:   broadcaster,
		notifications: make(map[uuid.UUID]*Notification),
	}
}

// Notify builds, dispatches, and records a notification. The returned error
// reports delivery failure so callers can log it; the notification itself is
// always recorded with its final status.
func (m *Manager) Notify(ctx context.Context, userID uuid.UUID, title, message, category, priority string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if priority == "" {
		priority = PriorityNormal
	}

	n := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Category:  category,
		Priority:  priority,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}

	sendErr := m.sender.Send(ctx, n)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	if sendErr == nil && m.broadcaster != nil {
		m.broadcaster.Publish([]byte(fmt.Sprintf(
			`{"id":%q,"user_id":%q,"title":%q,"category":%q,"priority":%q}`,
			n.ID, n.UserID, n.Title, n.Category, n.Priority)))
	}

	return sendErr
}

// ListByUser returns recorded notifications addressed to a user, up to limit.
func (m *Manager) ListByUser(_ context.Context, userID uuid.UUID, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			result = append(result, n)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}

// Stats returns notification counts grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}

// LogSender is the default delivery channel: it accepts every notification.
// Real channels (email, SMS, push) plug in behind the Sender interface.
type LogSender struct{}

func (LogSender) Send(_ context.Context, _ *Notification) error { return nil }

// MockDispatcher is a test double for Dispatcher that records calls.
type MockDispatcher struct {
	mu         sync.Mutex
	calls      []Notification
	ShouldFail bool
	FailError  string
}

func (m *MockDispatcher) Notify(_ context.Context, userID uuid.UUID, title, message, category, priority string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Notification{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Category: category,
		Priority: priority,
	})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of the recorded notifications.
func (m *MockDispatcher) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// Handler exposes notification inspection endpoints over HTTP.
type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.GET("/notifications/stats", h.HandleStats)
}

// HandleList handles GET /notifications?user_id=...
func (h *Handler) HandleList(c echo.Context) error {
	userID, err := uuid.Parse(c.QueryParam("user_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}
	list := h.manager.ListByUser(c.Request().Context(), userID, 100)
	return c.JSON(http.StatusOK, list)
}

// HandleStats handles GET /notifications/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
