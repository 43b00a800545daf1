// Package rpc binds the protocol to HTTP: one short path per method,
// gob-encoded request and response bodies.  HTTP supplies the
// request/response correlation; gob supplies the framing.
package rpc

import (
	"github.com/zettio/paxos/paxos"
)

const (
	PreparePath = "/prepare"
	AcceptPath  = "/accept"
	ChosenPath  = "/chosen"
)

// note all fields exported in structs so we can Gob them
type PrepareRequest struct {
	Proposal paxos.ProposalID
}

type PrepareResponse struct {
	MinProposal      paxos.ProposalID
	AcceptedProposal paxos.ProposalID
	AcceptedValue    paxos.Value
}

type AcceptRequest struct {
	Proposal paxos.ProposalID
	Value    paxos.Value
}

type AcceptResponse struct {
	MinProposal paxos.ProposalID
}
