package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Veraticus/bankflow/internal/model"
)

const bankDataPath = "/bankdata"

// Institutions lists the banks available for linking, optionally for one country.
func (c *Client) Institutions(ctx context.Context, country string) ([]model.Institution, error) {
	path := bankDataPath + "/institutions"
	if country != "" {
		path += "?country=" + url.QueryEscape(country)
	}

	var out struct {
		Institutions []model.Institution `json:"institutions"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: path, resource: resourceBankData, out: &out}); err != nil {
		return nil, err
	}
	return out.Institutions, nil
}

// StartLink begins linking a bank and returns the consent link.
func (c *Client) StartLink(ctx context.Context, req model.LinkRequest) (*model.LinkStart, error) {
	var out model.LinkStart
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     bankDataPath + "/start",
		resource: resourceBankData,
		body:     req,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Accounts lists the linked account ids.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	var out struct {
		Accounts []string `json:"accounts"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: bankDataPath + "/accounts", resource: resourceBankData, out: &out}); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// importBody is the body of an asynchronous import request.
type importBody struct {
	Incremental *bool  `json:"incremental,omitempty"`
	AccountID   string `json:"accountId"`
	DateFrom    string `json:"date_from,omitempty"`
	DateTo      string `json:"date_to,omitempty"`
	Mode        string `json:"mode"`
}

// StartImport launches an asynchronous import of one account.
func (c *Client) StartImport(ctx context.Context, accountID string, rng model.ImportRange) (*model.ImportStart, error) {
	var out model.ImportStart
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     bankDataPath + "/import",
		resource: resourceBankData,
		body: importBody{
			AccountID:   accountID,
			DateFrom:    rng.DateFrom,
			DateTo:      rng.DateTo,
			Incremental: rng.Incremental,
			Mode:        "async",
		},
		out: &out,
	})
	if err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("import of account %s returned no job id", accountID)
	}
	return &out, nil
}

// ImportProgress reads the current state of an import job.
func (c *Client) ImportProgress(ctx context.Context, jobID string) (*model.ImportJob, error) {
	var out model.ImportJob
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     bankDataPath + "/import/progress/" + url.PathEscape(jobID),
		resource: resourceBankData,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AutoSync asks the backend to import every account last synced more than
// minAgeMinutes ago. Zero leaves the threshold to the server.
func (c *Client) AutoSync(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error) {
	body := map[string]int{}
	if minAgeMinutes > 0 {
		body["minAgeMinutes"] = minAgeMinutes
	}

	var out model.AutoSyncResult
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     bankDataPath + "/auto/sync",
		resource: resourceBankData,
		body:     body,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Quota reports today's remaining import allowance per account.
func (c *Client) Quota(ctx context.Context) (*model.SyncQuota, error) {
	var out model.SyncQuota
	if err := c.do(ctx, request{method: http.MethodGet, path: bankDataPath + "/debug/account-calls", resource: resourceBankData, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}
