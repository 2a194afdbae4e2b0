// Package tui is the interactive checkout client: pick a product, scan the
// PromptPay QR, wait for the payment to settle. One cooperatively scheduled
// bubbletea loop drives the countdown and the status polling; a single
// resolved flag decides which terminal signal wins.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sea021/promptshop-go/internal/domain"
)

const (
	countdownSeconds = 120
	pollInterval     = 5 * time.Second
	navigateDelay    = 1500 * time.Millisecond
	requestTimeout   = 10 * time.Second
)

type state int

const (
	stateBrowsing state = iota
	stateAwaitingPayment
	stateSucceeded
	stateCanceled
)

// IntentSession is one checkout attempt as returned by the storefront API.
type IntentSession struct {
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	QRPayload       string `json:"qr_payload"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type API interface {
	Products(ctx context.Context) ([]domain.Product, error)
	CreateIntent(ctx context.Context, productID string, quantity int64, email string) (*IntentSession, error)
	PaymentStatus(ctx context.Context, intentID string) (string, error)
	CancelPayment(ctx context.Context, intentID string) (string, error)
}

type (
	productsMsg      []domain.Product
	intentMsg        IntentSession
	countdownTickMsg struct{}
	pollTickMsg      struct{}
	pollResultMsg    struct {
		status string
		err    error
	}
	cancelDoneMsg struct{ status string }
	navigateMsg   struct{}
	errMsg        struct{ err error }
)

type Model struct {
	api   API
	email string

	products []domain.Product
	cursor   int
	busy     bool

	state    state
	intent   IntentSession
	qr       string
	timeLeft int

	// resolved guards every terminal transition: the first terminal signal
	// (poll result, countdown expiry or user cancel) wins and every later
	// timer or response is discarded.
	resolved bool

	errText string
}

func New(api API, email string) Model {
	return Model{api: api, email: email, timeLeft: countdownSeconds}
}

func (m Model) Init() tea.Cmd {
	return m.fetchProductsCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case productsMsg:
		m.products = msg
		return m, nil

	case errMsg:
		m.busy = false
		m.errText = msg.err.Error()
		return m, nil

	case intentMsg:
		m.busy = false
		m.state = stateAwaitingPayment
		m.intent = IntentSession(msg)
		m.qr = renderQR(msg.QRPayload)
		m.timeLeft = countdownSeconds
		m.resolved = false
		m.errText = ""
		return m, tea.Batch(countdownTickCmd(), pollTickCmd())

	case countdownTickMsg:
		if m.state != stateAwaitingPayment || m.resolved {
			return m, nil
		}
		m.timeLeft--
		if m.timeLeft <= 0 {
			m = m.resolve(stateCanceled)
			return m, tea.Batch(m.cancelIntentCmd(), navigateCmd())
		}
		return m, countdownTickCmd()

	case pollTickMsg:
		if m.state != stateAwaitingPayment || m.resolved {
			return m, nil
		}
		return m, m.pollStatusCmd()

	case pollResultMsg:
		if m.state != stateAwaitingPayment || m.resolved {
			return m, nil
		}
		switch msg.status {
		case "succeeded":
			m = m.resolve(stateSucceeded)
			return m, navigateCmd()
		case "canceled":
			m = m.resolve(stateCanceled)
			return m, navigateCmd()
		default:
			// Still pending, or a transient poll error; keep polling.
			return m, pollTickCmd()
		}

	case cancelDoneMsg:
		return m, nil

	case navigateMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.state == stateAwaitingPayment && !m.resolved {
			m = m.resolve(stateCanceled)
			return m, tea.Batch(m.cancelIntentCmd(), navigateCmd())
		}
		return m, tea.Quit
	case "up":
		if m.state == stateBrowsing && m.cursor > 0 {
			m.cursor--
		}
	case "down":
		if m.state == stateBrowsing && m.cursor < len(m.products)-1 {
			m.cursor++
		}
	case "enter":
		if m.state == stateBrowsing && !m.busy && len(m.products) > 0 {
			m.busy = true
			m.errText = ""
			return m, m.createIntentCmd(m.products[m.cursor].ID)
		}
	case "c":
		if m.state == stateAwaitingPayment && !m.resolved {
			m = m.resolve(stateCanceled)
			return m, tea.Batch(m.cancelIntentCmd(), navigateCmd())
		}
	}
	return m, nil
}

func (m Model) resolve(terminal state) Model {
	m.resolved = true
	m.state = terminal
	return m
}

func (m Model) View() string {
	b := &strings.Builder{}
	switch m.state {
	case stateBrowsing:
		fmt.Fprintln(b, "promptshop checkout")
		fmt.Fprintln(b, "")
		if len(m.products) == 0 {
			fmt.Fprintln(b, "Loading products...")
		}
		for i, p := range m.products {
			marker := " "
			if i == m.cursor {
				marker = ">"
			}
			fmt.Fprintf(b, " %s %s — %d %s\n", marker, p.Name, p.Price, "THB")
		}
		if m.busy {
			fmt.Fprintln(b, "\nCreating payment intent...")
		}
		fmt.Fprintln(b, "\nControls: up/down select, enter to buy, q to quit")
	case stateAwaitingPayment:
		fmt.Fprintln(b, "PromptPay Payment")
		fmt.Fprintln(b, "")
		fmt.Fprintln(b, m.qr)
		fmt.Fprintf(b, "Amount: %d.%02d %s\n", m.intent.Amount/100, m.intent.Amount%100, strings.ToUpper(m.intent.Currency))
		fmt.Fprintf(b, "Scan the QR code to pay. Time left: %ds\n", m.timeLeft)
		fmt.Fprintln(b, "\nPress c to cancel")
	case stateSucceeded:
		fmt.Fprintln(b, "Payment successful! Thank you for your purchase.")
	case stateCanceled:
		fmt.Fprintln(b, "Payment canceled.")
	}
	if m.errText != "" {
		fmt.Fprintf(b, "\nError: %s\n", m.errText)
	}
	return b.String()
}

func (m Model) fetchProductsCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		products, err := api.Products(ctx)
		if err != nil {
			return errMsg{err}
		}
		return productsMsg(products)
	}
}

func (m Model) createIntentCmd(productID string) tea.Cmd {
	api, email := m.api, m.email
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		session, err := api.CreateIntent(ctx, productID, 1, email)
		if err != nil {
			return errMsg{err}
		}
		return intentMsg(*session)
	}
}

func (m Model) pollStatusCmd() tea.Cmd {
	api, intentID := m.api, m.intent.PaymentIntentID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		status, err := api.PaymentStatus(ctx, intentID)
		if err != nil {
			return pollResultMsg{err: err}
		}
		return pollResultMsg{status: status}
	}
}

func (m Model) cancelIntentCmd() tea.Cmd {
	api, intentID := m.api, m.intent.PaymentIntentID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		status, err := api.CancelPayment(ctx, intentID)
		if err != nil {
			return cancelDoneMsg{status: "error"}
		}
		return cancelDoneMsg{status: status}
	}
}

func countdownTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownTickMsg{} })
}

func pollTickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollTickMsg{} })
}

func navigateCmd() tea.Cmd {
	return tea.Tick(navigateDelay, func(time.Time) tea.Msg { return navigateMsg{} })
}
