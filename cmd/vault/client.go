// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianVault/services/vault/datatypes"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/middleware"
)

const defaultServerURL = "http://localhost:12310"

// apiError is a non-2xx answer from the vault service. Code carries the
// stable SCREAMING_SNAKE identifier so scripts can branch on it.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// apiClient speaks the vault's HTTP API.
type apiClient struct {
	baseURL string
	actor   string
	bearer  string
	httpc   *http.Client
}

// newClient builds a client from the global --server/--actor flags.
func newClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(serverURL, "/"),
		actor:   actorName,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// withBearer attaches an operator token to every subsequent request.
func (c *apiClient) withBearer(token string) *apiClient {
	c.bearer = token
	return c
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(middleware.ActorHeader, c.actor)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body datatypes.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return &apiError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &apiError{Status: resp.StatusCode, Message: msg}
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// ---- vault operations ----

func (c *apiClient) Deposit(ctx context.Context, assets, receiver string) (ledger.Receipt, error) {
	var rcpt ledger.Receipt
	err := c.post(ctx, "/v1/vault/deposit",
		datatypes.DepositRequest{Assets: assets, Receiver: receiver}, &rcpt)
	return rcpt, err
}

func (c *apiClient) Withdraw(ctx context.Context, assets, receiver, owner string) (ledger.Receipt, error) {
	var rcpt ledger.Receipt
	err := c.post(ctx, "/v1/vault/withdraw",
		datatypes.WithdrawRequest{Assets: assets, Receiver: receiver, Owner: owner}, &rcpt)
	return rcpt, err
}

func (c *apiClient) Redeem(ctx context.Context, shares, receiver, owner string) (ledger.Receipt, error) {
	var rcpt ledger.Receipt
	err := c.post(ctx, "/v1/vault/redeem",
		datatypes.RedeemRequest{Shares: shares, Receiver: receiver, Owner: owner}, &rcpt)
	return rcpt, err
}

func (c *apiClient) InjectYield(ctx context.Context, amount string) (ledger.Receipt, error) {
	var rcpt ledger.Receipt
	err := c.post(ctx, "/v1/vault/yield", datatypes.YieldRequest{Amount: amount}, &rcpt)
	return rcpt, err
}

func (c *apiClient) ApproveShares(ctx context.Context, spender, shares string) (datatypes.AckResponse, error) {
	var ack datatypes.AckResponse
	err := c.post(ctx, "/v1/vault/approve",
		datatypes.ApproveSharesRequest{Spender: spender, Shares: shares}, &ack)
	return ack, err
}

// ---- queries ----

func (c *apiClient) Stats(ctx context.Context) (datatypes.StatsResponse, error) {
	var stats datatypes.StatsResponse
	err := c.get(ctx, "/v1/vault/stats", &stats)
	return stats, err
}

func (c *apiClient) Holder(ctx context.Context, addr string) (datatypes.HolderResponse, error) {
	var holder datatypes.HolderResponse
	err := c.get(ctx, "/v1/vault/holders/"+url.PathEscape(addr), &holder)
	return holder, err
}

func (c *apiClient) Events(ctx context.Context, limit int) (datatypes.EventsResponse, error) {
	path := "/v1/vault/events"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var events datatypes.EventsResponse
	err := c.get(ctx, path, &events)
	return events, err
}

func (c *apiClient) PreviewDeposit(ctx context.Context, assets string) (datatypes.PreviewDepositResponse, error) {
	var preview datatypes.PreviewDepositResponse
	err := c.get(ctx, "/v1/vault/preview/deposit?assets="+url.QueryEscape(assets), &preview)
	return preview, err
}

func (c *apiClient) PreviewRedeem(ctx context.Context, shares string) (datatypes.PreviewRedeemResponse, error) {
	var preview datatypes.PreviewRedeemResponse
	err := c.get(ctx, "/v1/vault/preview/redeem?shares="+url.QueryEscape(shares), &preview)
	return preview, err
}

func (c *apiClient) Health(ctx context.Context) (datatypes.HealthResponse, error) {
	var health datatypes.HealthResponse
	err := c.get(ctx, "/health", &health)
	return health, err
}

// ---- token operations ----

func (c *apiClient) MintTokens(ctx context.Context, to, amount string) (datatypes.AckResponse, error) {
	var ack datatypes.AckResponse
	err := c.post(ctx, "/v1/token/mint", datatypes.MintRequest{To: to, Amount: amount}, &ack)
	return ack, err
}

func (c *apiClient) TransferTokens(ctx context.Context, to, amount string) (datatypes.AckResponse, error) {
	var ack datatypes.AckResponse
	err := c.post(ctx, "/v1/token/transfer", datatypes.TransferRequest{To: to, Amount: amount}, &ack)
	return ack, err
}

func (c *apiClient) ApproveTokens(ctx context.Context, spender, amount string) (datatypes.AckResponse, error) {
	var ack datatypes.AckResponse
	err := c.post(ctx, "/v1/token/approve",
		datatypes.TokenApproveRequest{Spender: spender, Amount: amount}, &ack)
	return ack, err
}

func (c *apiClient) TokenBalance(ctx context.Context, addr string) (datatypes.BalanceResponse, error) {
	var balance datatypes.BalanceResponse
	err := c.get(ctx, "/v1/token/balances/"+url.PathEscape(addr), &balance)
	return balance, err
}

// websocketURL converts the configured base URL to the event stream's
// ws:// (or wss://) address.
func (c *apiClient) websocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/events/ws"
}
