package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	common "github.com/ajayykmr/billing-notifier/internal/adapters/common"
)

// HistoryPageSize is the server's fixed page size for /sms-history.
const HistoryPageSize = 10

// User is the signed-in staff member as returned by /signin.
type User struct {
	ID          string `json:"id,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// SignInResult is the body of a successful /signin call.
type SignInResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SMSRecord is one row of the sent SMS history.
type SMSRecord struct {
	ClientSMSID string    `json:"clientsmsid"`
	Mobile      string    `json:"mobile"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HistoryPage is one page of /sms-history.
type HistoryPage struct {
	Page    int         `json:"-"`
	Records []SMSRecord `json:"data"`
	Total   int         `json:"total"`
}

// TotalPages derives the page count from the server's total.
func (p HistoryPage) TotalPages() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Total + HistoryPageSize - 1) / HistoryPageSize
}

// SignIn exchanges credentials for a session token.
func (c *Client) SignIn(ctx context.Context, phoneNumber, password string) (*SignInResult, error) {
	if strings.TrimSpace(phoneNumber) == "" || password == "" {
		return nil, common.WrapValidation(errors.New("phone number and password are required"))
	}
	resp, err := c.Do(ctx, Call{
		Method:    http.MethodPost,
		Path:      "/signin",
		Body:      map[string]string{"phoneNumber": strings.TrimSpace(phoneNumber), "password": password},
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	var out SignInResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &common.ServerError{StatusCode: resp.StatusCode, Message: "sign-in response carried no token"}
	}
	return &out, nil
}

// SMSHistory fetches one page (1-based) of sent messages.
func (c *Client) SMSHistory(ctx context.Context, page int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	resp, err := c.Do(ctx, Call{
		Method: http.MethodGet,
		Path:   "/sms-history",
		Query:  url.Values{"page": []string{strconv.Itoa(page)}},
	})
	if err != nil {
		return nil, err
	}
	out := &HistoryPage{Page: page}
	if err := decode(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendBill asks the server to text the current bill to one customer and
// returns the server's acknowledgment message.
func (c *Client) SendBill(ctx context.Context, customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", common.WrapValidation(errors.New("customer id is required"))
	}
	resp, err := c.Do(ctx, Call{
		Method: http.MethodPost,
		Path:   "/send-bill",
		Body:   map[string]string{"customerId": customerID},
	})
	if err != nil {
		return "", err
	}
	return common.AckMessage(resp.Body), nil
}

// SendBills asks the server to text bills to every customer.
func (c *Client) SendBills(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, Call{Method: http.MethodPost, Path: "/send-bills"})
	if err != nil {
		return "", err
	}
	return common.AckMessage(resp.Body), nil
}
