// Package mailbox is a REST client for the mailbox provider. Only the
// surface the gateway needs is covered: subscription CRUD and message
// read/patch/move.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// New creates a provider client. With auth configured the underlying HTTP
// client obtains tokens via the client-credentials flow and refreshes them
// transparently.
func New(ctx context.Context, config Config) *Client {
	httpClient := http.DefaultClient
	if config.Auth != nil {
		cc := clientcredentials.Config{
			TokenURL:     config.Auth.TokenURL,
			ClientID:     config.Auth.ClientID,
			ClientSecret: config.Auth.ClientSecret,
			Scopes:       config.Auth.Scopes,
		}
		httpClient = cc.Client(ctx)
	}
	return &Client{
		baseURL:        config.BaseURL,
		httpClient:     httpClient,
		requestTimeout: config.RequestTimeout,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("cannot encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("cannot create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cannot call provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("unexpected statusCode %v: %s", resp.StatusCode, data)
	}
	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return resp.StatusCode, fmt.Errorf("cannot decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// ListSubscriptions returns all subscriptions owned by this application.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var list subscriptionList
	if _, err := c.do(ctx, http.MethodGet, "/subscriptions", nil, &list); err != nil {
		return nil, fmt.Errorf("cannot list subscriptions: %w", err)
	}
	return list.Value, nil
}

// CreateSubscription registers a new change-notification subscription.
func (c *Client) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	var created Subscription
	if _, err := c.do(ctx, http.MethodPost, "/subscriptions", sub, &created); err != nil {
		return Subscription{}, fmt.Errorf("cannot create subscription: %w", err)
	}
	return created, nil
}

// RenewSubscription extends the expiry of an existing subscription via a
// partial update.
func (c *Client) RenewSubscription(ctx context.Context, id string, expiry time.Time) error {
	patch := map[string]interface{}{
		"expirationDateTime": expiry.UTC().Format(time.RFC3339),
	}
	if _, err := c.do(ctx, http.MethodPatch, "/subscriptions/"+url.PathEscape(id), patch, nil); err != nil {
		return fmt.Errorf("cannot renew subscription %v: %w", id, err)
	}
	return nil
}

type message struct {
	Subject string `json:"subject"`
}

// GetMessageSubject fetches the subject of a message with a minimal
// projection.
func (c *Client) GetMessageSubject(ctx context.Context, userID, messageID string) (string, error) {
	var m message
	path := "/users/" + url.PathEscape(userID) + "/messages/" + url.PathEscape(messageID) + "?$select=subject"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return "", fmt.Errorf("cannot get message %v: %w", messageID, err)
	}
	return m.Subject, nil
}

// MarkMessageRead marks a message as read. Re-marking an already read
// message is harmless.
func (c *Client) MarkMessageRead(ctx context.Context, userID, messageID string) error {
	path := "/users/" + url.PathEscape(userID) + "/messages/" + url.PathEscape(messageID)
	patch := map[string]interface{}{"isRead": true}
	if _, err := c.do(ctx, http.MethodPatch, path, patch, nil); err != nil {
		return fmt.Errorf("cannot mark message %v read: %w", messageID, err)
	}
	return nil
}

type mailFolder struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type mailFolderList struct {
	Value []mailFolder `json:"value"`
}

// EnsureFolder returns the identifier of the named folder under the mailbox
// root, creating it when absent.
func (c *Client) EnsureFolder(ctx context.Context, userID, displayName string) (string, error) {
	base := "/users/" + url.PathEscape(userID) + "/mailFolders"
	var list mailFolderList
	query := url.Values{}
	query.Set("$filter", "displayName eq '"+displayName+"'")
	if _, err := c.do(ctx, http.MethodGet, base+"?"+query.Encode(), nil, &list); err != nil {
		return "", fmt.Errorf("cannot list folders: %w", err)
	}
	for _, f := range list.Value {
		if f.DisplayName == displayName {
			return f.ID, nil
		}
	}
	var created mailFolder
	if _, err := c.do(ctx, http.MethodPost, base, mailFolder{DisplayName: displayName}, &created); err != nil {
		return "", fmt.Errorf("cannot create folder %v: %w", displayName, err)
	}
	return created.ID, nil
}

// MoveMessage moves a message into the destination folder.
func (c *Client) MoveMessage(ctx context.Context, userID, messageID, destinationID string) error {
	path := "/users/" + url.PathEscape(userID) + "/messages/" + url.PathEscape(messageID) + "/move"
	body := map[string]interface{}{"destinationId": destinationID}
	if _, err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("cannot move message %v: %w", messageID, err)
	}
	return nil
}
