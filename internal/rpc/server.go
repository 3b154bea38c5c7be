// Package rpc implements the read-only REST API: chain, header, block,
// peer, and txhashset inspection under /v1.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shroudnet/shroud-node/config"
	"github.com/shroudnet/shroud-node/internal/chain"
	klog "github.com/shroudnet/shroud-node/internal/log"
	"github.com/shroudnet/shroud-node/internal/p2p"
	"github.com/shroudnet/shroud-node/internal/storage"
)

// handlerError pairs an HTTP status with a message the client sees.
type handlerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *handlerError) Error() string {
	return e.Message
}

func notFound(format string, args ...interface{}) *handlerError {
	return &handlerError{Code: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...interface{}) *handlerError {
	return &handlerError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func internalErr(err error) *handlerError {
	return &handlerError{Code: http.StatusInternalServerError, Message: err.Error()}
}

// asHandlerError maps storage/chain errors to HTTP codes: missing data is
// 404, everything else 500.
func asHandlerError(err error) *handlerError {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, chain.ErrChainMissingData) {
		return notFound("not found")
	}
	return internalErr(err)
}

// Server is the read-only REST server.
type Server struct {
	addr        string
	chain       *chain.Chain
	p2pServer   *p2p.Server
	server      *http.Server
	ln          net.Listener
	logger      zerolog.Logger
	allowedNets []*net.IPNet // Empty = allow all.
}

// New creates the REST server over the chain and P2P state.
func New(cfg config.RESTConfig, ch *chain.Chain, p2pServer *p2p.Server) *Server {
	s := &Server{
		addr:        fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		chain:       ch,
		p2pServer:   p2pServer,
		logger:      klog.REST,
		allowedNets: parseAllowedIPs(cfg.AllowedIPs),
	}

	router := mux.NewRouter()
	s.addRoutes(router)

	s.server = &http.Server{
		Handler:      s.filterIPs(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rest listen: %w", err)
	}
	s.ln = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("REST server listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("REST server failed")
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.server.Close()
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// addRoutes registers the /v1 route inventory. Pool and chain maintenance
// endpoints (pool, chain/compact, chain/validate) are deliberately absent.
func (s *Server) addRoutes(router *mux.Router) {
	router.HandleFunc("/v1/status", makeHandler(s.handleStatus)).Methods("GET")
	router.HandleFunc("/v1/headers/{id}", makeHandler(s.handleHeader)).Methods("GET")
	router.HandleFunc("/v1/blocks/{id}", makeHandler(s.handleBlock)).Methods("GET")
	router.HandleFunc("/v1/chain", makeHandler(s.handleChain)).Methods("GET")
	router.HandleFunc("/v1/chain/outputs/byids", makeHandler(s.handleOutputsByIDs)).Methods("GET")
	router.HandleFunc("/v1/chain/outputs/byheight", makeHandler(s.handleOutputsByHeight)).Methods("GET")
	router.HandleFunc("/v1/peers/all", makeHandler(s.handleAllPeers)).Methods("GET")
	router.HandleFunc("/v1/peers/connected", makeHandler(s.handleConnectedPeers)).Methods("GET")
	router.HandleFunc("/v1/peers/{addr}", makeHandler(s.handlePeer)).Methods("GET")
	router.HandleFunc("/v1/txhashset/roots", makeHandler(s.handleRoots)).Methods("GET")
	router.HandleFunc("/v1/txhashset/lastoutputs", makeHandler(s.handleLastOutputs)).Methods("GET")
	router.HandleFunc("/v1/txhashset/lastkernels", makeHandler(s.handleLastKernels)).Methods("GET")
	router.HandleFunc("/v1/txhashset/lastrangeproofs", makeHandler(s.handleLastRangeProofs)).Methods("GET")
	router.HandleFunc("/v1/txhashset/outputs", makeHandler(s.handleTxHashSetOutputs)).Methods("GET")
	router.HandleFunc("/v1/explorer/blockinfo/{id}", makeHandler(s.handleBlockInfo)).Methods("GET")
}

// makeHandler adapts a typed handler into an http.HandlerFunc with uniform
// JSON encoding and error mapping.
func makeHandler(handler func(routeParams map[string]string, query map[string][]string) (interface{}, *handlerError)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, hErr := handler(mux.Vars(r), r.URL.Query())
		if hErr != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(hErr.Code)
			json.NewEncoder(w).Encode(hErr)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// filterIPs rejects requests from addresses outside the allowlist.
func (s *Server) filterIPs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			allowed := false
			for _, n := range s.allowedNets {
				if n.Contains(ip) {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}
