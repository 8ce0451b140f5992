// Package receipts correlates payments with merchant receipts delivered as
// wallet messages.
package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/net/html"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/metrics"
)

const (
	// DefaultMerchantApp is the messaging identity the point-of-sale sends receipts from.
	DefaultMerchantApp = "dcafKdWLATod3BLRngsqZ7CrQwcrUxrLjFWYJwYP1Fy"

	// MatchWindow is how far a receipt message may be from the payment time.
	MatchWindow = 15 * time.Second

	receiptMarker = "You can find your receipt"
	maxBodyBytes  = 4 << 20
)

var (
	memoPattern = regexp.MustCompile(`[A-Za-z0-9]{20}`)

	// ErrInvalidKey is returned when the secret key is not a 64-byte ed25519 key.
	ErrInvalidKey = errors.New("invalid secret key")
)

// HasReceiptMemo reports whether memo looks like a point-of-sale order reference.
func HasReceiptMemo(memo string) bool {
	return memoPattern.MatchString(memo)
}

// Message is one message delivered to the wallet.
type Message struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}

// rawReceipt is the page data embedded in a receipt page.
type rawReceipt struct {
	Props struct {
		PageProps struct {
			Order struct {
				Items []struct {
					ProductName   string  `json:"productName"`
					OrderQuantity int     `json:"orderQuantity"`
					UnitPrice     float64 `json:"unitPrice"`
				} `json:"items"`
			} `json:"order"`
			Shop struct {
				Name string `json:"name"`
			} `json:"shop"`
		} `json:"pageProps"`
	} `json:"props"`
}

var _ ledger.ReceiptFinder = (*Client)(nil)

// Client implements ledger.ReceiptFinder over HTTP.
type Client struct {
	messagesURL string
	app         string
	httpClient  *http.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewClient creates a receipts client. messagesURL is the base URL of the
// messaging service. If httpClient is nil, a default client with a 10s
// timeout is used. If logger is nil, logs are discarded.
func NewClient(messagesURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		messagesURL: strings.TrimRight(messagesURL, "/"),
		app:         DefaultMerchantApp,
		httpClient:  httpClient,
		metrics:     m,
		logger:      logger,
	}
}

// FindReceipt returns the receipt for a payment, or nil when there is none.
func (c *Client) FindReceipt(ctx context.Context, secretKey []byte, memo string, approxTimeMs int64) (receipt *ledger.Receipt, err error) {
	if !HasReceiptMemo(memo) {
		return nil, nil
	}
	if len(secretKey) != 64 {
		return nil, ErrInvalidKey
	}

	start := time.Now()
	defer func() {
		if c.metrics == nil {
			return
		}
		status := "found"
		switch {
		case err != nil:
			status = "error"
		case receipt == nil:
			status = "not_found"
		}
		c.metrics.RecordReceiptLookup(status, time.Since(start).Seconds())
	}()

	messages, err := c.listMessages(ctx, solana.PrivateKey(secretKey))
	if err != nil {
		return nil, err
	}

	msg, ok := matchMessage(messages, time.UnixMilli(approxTimeMs))
	if !ok {
		c.logger.DebugContext(ctx, "no receipt message near payment", "memo", memo)
		return nil, nil
	}

	raw, err := c.fetchReceipt(ctx, receiptURL(msg.Text))
	if err != nil {
		return nil, err
	}
	return toReceipt(raw), nil
}

// listMessages fetches the merchant thread. Requests are authenticated by
// signing the current timestamp with the wallet key.
func (c *Client) listMessages(ctx context.Context, key solana.PrivateKey) ([]Message, error) {
	u := fmt.Sprintf("%s/api/v1/messages?app=%s", c.messagesURL, url.QueryEscape(c.app))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := key.Sign([]byte(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Public-Key", key.PublicKey().String())
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig.String())

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return resp.Messages, nil
}

func (c *Client) fetchReceipt(ctx context.Context, pageURL string) (*rawReceipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}

	data, err := nextData(string(body))
	if err != nil {
		return nil, err
	}
	var raw rawReceipt
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode receipt data: %w", err)
	}
	return &raw, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return body, nil
}

// matchMessage returns the first receipt message within MatchWindow of at.
func matchMessage(messages []Message, at time.Time) (Message, bool) {
	for _, m := range messages {
		if !strings.Contains(m.Text, receiptMarker) {
			continue
		}
		delta := m.Timestamp.Sub(at)
		if delta < 0 {
			delta = -delta
		}
		if delta < MatchWindow {
			return m, true
		}
	}
	return Message{}, false
}

// receiptURL is the text after the last ": " of a receipt message.
func receiptURL(text string) string {
	if i := strings.LastIndex(text, ": "); i >= 0 {
		text = text[i+2:]
	}
	return strings.TrimSpace(text)
}

// nextData extracts the JSON page data script from a receipt page.
func nextData(page string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(page))
	inData := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", errors.New("receipt page has no __NEXT_DATA__ script")
			}
			return "", fmt.Errorf("failed to parse receipt page: %w", z.Err())
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data != "script" {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key == "id" && a.Val == "__NEXT_DATA__" {
					inData = true
				}
			}
		case html.TextToken:
			if inData {
				return string(z.Text()), nil
			}
		case html.EndTagToken:
			inData = false
		}
	}
}

func toReceipt(raw *rawReceipt) *ledger.Receipt {
	page := raw.Props.PageProps
	receipt := &ledger.Receipt{
		Shop:  page.Shop.Name,
		Items: make([]ledger.ReceiptItem, 0, len(page.Order.Items)),
	}
	for _, item := range page.Order.Items {
		// "Solana | Not Financial Advice Tee" -> "Not Financial Advice Tee"
		name := item.ProductName
		if i := strings.LastIndex(name, "|"); i >= 0 {
			name = name[i+1:]
		}
		receipt.Items = append(receipt.Items, ledger.ReceiptItem{
			Name:      strings.TrimSpace(name),
			Quantity:  item.OrderQuantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return receipt
}
