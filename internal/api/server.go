// Package api exposes walletfolio over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/matrixise/walletfolio/internal/approval"
	"github.com/matrixise/walletfolio/internal/cache"
	"github.com/matrixise/walletfolio/internal/gas"
	"github.com/matrixise/walletfolio/internal/nft"
	"github.com/matrixise/walletfolio/internal/portfolio"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Portfolio serves cached views and refreshes.
type Portfolio interface {
	View(ctx context.Context, wallet string) portfolio.View
	Refresh(ctx context.Context, wallet string, force bool) (portfolio.Result, error)
}

// Approvals scans allowances.
type Approvals interface {
	Scan(ctx context.Context, wallet string, spenders []string) []approval.TokenApproval
	Approvals(wallet string) []approval.TokenApproval
}

// Cache drops cached entries.
type Cache interface {
	Clear(ctx context.Context, wallet string) error
	ClearAll(ctx context.Context) error
}

// GasSource returns the latest gas prices.
type GasSource interface {
	Current() gas.GasPrice
}

// Deps are the handlers' collaborators. Nil optional handlers are not
// mounted.
type Deps struct {
	Portfolio Portfolio
	Approvals Approvals
	Cache     Cache
	Gas       GasSource
	Health    http.Handler
	Metrics   http.Handler
	Logger    *slog.Logger
}

type server struct {
	Deps
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &server{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Gas != nil {
			r.Get("/gas", s.getGas)
		}
		r.Route("/wallets/{address}", func(r chi.Router) {
			r.Use(requireAddress)
			if deps.Portfolio != nil {
				r.Get("/", s.getWallet)
				r.Post("/refresh", s.refreshWallet)
				r.Get("/nfts/collections", s.getCollections)
			}
			if deps.Approvals != nil {
				r.Get("/approvals", s.getApprovals)
			}
			if deps.Cache != nil {
				r.Delete("/cache", s.clearWallet)
			}
		})
		if deps.Cache != nil {
			r.Delete("/cache", s.clearAll)
		}
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type addressKey struct{}

func requireAddress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "address")
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "invalid wallet address")
			return
		}
		addr := strings.ToLower(common.HexToAddress(raw).Hex())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), addressKey{}, addr)))
	})
}

func address(r *http.Request) string {
	addr, _ := r.Context().Value(addressKey{}).(string)
	return addr
}

func (s *server) getGas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Gas.Current())
}

func (s *server) getWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Portfolio.View(r.Context(), address(r)))
}

// refreshWallet reloads every section. ?force=false honors a fresh cache.
// Section failures are reported next to the entry with a 502.
func (s *server) refreshWallet(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") != "false"
	res, err := s.Portfolio.Refresh(r.Context(), address(r), force)
	if err != nil {
		s.Logger.Warn("Refresh finished with errors", "wallet", address(r), "error", err)
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type collectionsResponse struct {
	Collections []nft.Collection `json:"collections"`
	NFTs        []nft.NFT        `json:"nfts"`
	TotalValue  float64          `json:"total_value"`
	Loading     bool             `json:"loading"`
}

// getCollections serves the cached NFTs filtered by ?collection= and
// ordered by ?sort=.
func (s *server) getCollections(w http.ResponseWriter, r *http.Request) {
	v := s.Portfolio.View(r.Context(), address(r))
	resp := collectionsResponse{
		Collections: []nft.Collection{},
		NFTs:        []nft.NFT{},
		Loading:     v.Loading(cache.SectionNFTs),
	}
	if rec := v.Entry.NFTs; rec != nil {
		resp.Collections = rec.Collections
		resp.TotalValue = rec.TotalValue
		resp.NFTs = nft.Sort(nft.FilterByCollection(rec.NFTs, r.URL.Query().Get("collection")), r.URL.Query().Get("sort"))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getApprovals returns the last scan. ?refresh=true scans again first.
func (s *server) getApprovals(w http.ResponseWriter, r *http.Request) {
	wallet := address(r)
	list := s.Approvals.Approvals(wallet)
	if r.URL.Query().Get("refresh") == "true" {
		list = s.Approvals.Scan(r.Context(), wallet, nil)
	}
	if list == nil {
		list = []approval.TokenApproval{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) clearWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.Cache.Clear(r.Context(), address(r)); err != nil {
		s.Logger.Error("Failed to clear wallet cache", "wallet", address(r), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) clearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Cache.ClearAll(r.Context()); err != nil {
		s.Logger.Error("Failed to clear cache", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
