package rpc

import (
	"encoding/gob"
	"net/http"

	"github.com/zettio/paxos/common"
	"github.com/zettio/paxos/paxos"
)

// A Server exposes a node's acceptor and learner over HTTP.  A store
// failure turns into a 500; the proposer on the other end counts that
// the same as silence.
type Server struct {
	acceptor *paxos.Acceptor
	learner  *paxos.Learner
}

func NewServer(acceptor *paxos.Acceptor, learner *paxos.Learner) *Server {
	return &Server{acceptor: acceptor, learner: learner}
}

// HandleHTTP wires the protocol endpoints to the provided mux.
func (s *Server) HandleHTTP(mux *http.ServeMux) {
	mux.HandleFunc(PreparePath, func(w http.ResponseWriter, r *http.Request) {
		var req PrepareRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		res, err := s.acceptor.Prepare(req.Proposal)
		if err != nil {
			serverError(w, err)
			return
		}
		encodeResponse(w, PrepareResponse{
			MinProposal:      res.MinProposal,
			AcceptedProposal: res.AcceptedProposal,
			AcceptedValue:    res.AcceptedValue,
		})
	})

	mux.HandleFunc(AcceptPath, func(w http.ResponseWriter, r *http.Request) {
		var req AcceptRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		res, err := s.acceptor.Accept(req.Proposal, req.Value)
		if err != nil {
			serverError(w, err)
			return
		}
		encodeResponse(w, AcceptResponse{MinProposal: res.MinProposal})
	})

	// Read-out path: keeps working even when the disk no longer does.
	mux.HandleFunc(ChosenPath, func(w http.ResponseWriter, r *http.Request) {
		value, ok := s.learner.Chosen()
		if !ok {
			http.Error(w, "no value chosen", http.StatusNotFound)
			return
		}
		w.Write([]byte(value.String()))
	})
}

func decodeRequest(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "verb not handled", http.StatusBadRequest)
		return false
	}
	if err := gob.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		common.Log.Warnf("bad request on %s: %v", r.URL.Path, err)
		return false
	}
	return true
}

func encodeResponse(w http.ResponseWriter, res interface{}) {
	if err := gob.NewEncoder(w).Encode(res); err != nil {
		common.Log.Warnf("writing response: %v", err)
	}
}

func serverError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
	common.Log.Errorf("request failed: %v", err)
}
