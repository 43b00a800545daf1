package rpc

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/zettio/paxos/config"
	"github.com/zettio/paxos/paxos"
)

// A Client sends prepare and accept requests to cluster nodes.  It
// implements paxos.Caller; the per-call deadline comes from the
// caller's context.
type Client struct {
	cfg  *config.Config
	http *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{}}
}

func (c *Client) Prepare(ctx context.Context, node uint64, n paxos.ProposalID) (paxos.PrepareResult, error) {
	var res PrepareResponse
	if err := c.call(ctx, node, PreparePath, PrepareRequest{Proposal: n}, &res); err != nil {
		return paxos.PrepareResult{}, err
	}
	return paxos.PrepareResult{
		MinProposal:      res.MinProposal,
		AcceptedProposal: res.AcceptedProposal,
		AcceptedValue:    res.AcceptedValue,
	}, nil
}

func (c *Client) Accept(ctx context.Context, node uint64, n paxos.ProposalID, v paxos.Value) (paxos.AcceptResult, error) {
	var res AcceptResponse
	if err := c.call(ctx, node, AcceptPath, AcceptRequest{Proposal: n, Value: v}, &res); err != nil {
		return paxos.AcceptResult{}, err
	}
	return paxos.AcceptResult{MinProposal: res.MinProposal}, nil
}

func (c *Client) call(ctx context.Context, node uint64, path string, req, res interface{}) error {
	if !c.cfg.Contains(node) {
		return errors.Errorf("unknown node %d", node)
	}

	body := new(bytes.Buffer)
	if err := gob.NewEncoder(body).Encode(req); err != nil {
		return errors.Wrap(err, "encoding request")
	}

	url := fmt.Sprintf("http://%s%s", c.cfg.Addr(node), path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}

	httpRes, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpRes.Body.Close()

	if httpRes.StatusCode != http.StatusOK {
		return errors.Errorf("%s from node %d: status %d", path, node, httpRes.StatusCode)
	}
	if err := gob.NewDecoder(httpRes.Body).Decode(res); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
