package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lewismc/earthdata-search/internal/errors"
	"github.com/lewismc/earthdata-search/orders"
)

const defaultRecentLimit = 20

type sessionStatus struct {
	Authenticated        bool  `json:"authenticated"`
	ServerRefreshDueIn   int   `json:"server_refresh_due_in"`
	ClientRefreshDueInMs int64 `json:"client_refresh_due_in_ms"`
}

// SessionStatusHandler reports token state for the client-side refresh timer.
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := SessionFrom(r.Context())
		status := sessionStatus{Authenticated: s.deps.Tokens.IsAuthenticated(session)}
		if status.Authenticated {
			status.ServerRefreshDueIn = s.deps.Tokens.ServerRefreshDueIn(session)
			status.ClientRefreshDueInMs = s.deps.Tokens.ClientRefreshDueInMs(session)
		}
		respondWithJSON(w, http.StatusOK, status)
	}
}

type recentDatasetsResponse struct {
	DatasetIDs []string `json:"dataset_ids"`
}

// RecentDatasetsHandler lists the caller's recently viewed datasets, most recent first.
func (s *Server) RecentDatasetsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
			limit = n
		}

		session := SessionFrom(r.Context())
		identity, err := s.deps.Resolver.Resolve(r.Context(), session)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		ids, err := s.deps.Resolver.RecentDatasets(r.Context(), session, identity, limit)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		respondWithJSON(w, http.StatusOK, recentDatasetsResponse{DatasetIDs: ids})
	}
}

type useDatasetRequest struct {
	DatasetID any `json:"dataset_id"`
}

type useDatasetResponse struct {
	Touched bool `json:"touched"`
}

// UseDatasetHandler records that the caller looked at a dataset. dataset_id
// may be a single id or a list, as JSON or form values.
func (s *Server) UseDatasetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID, err := readDatasetID(r)
		if err != nil {
			respondWithProblem(w, r, http.StatusBadRequest, "Bad Request", "invalid request body")
			return
		}

		session := SessionFrom(r.Context())
		identity, err := s.deps.Resolver.Resolve(r.Context(), session)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		touched, err := s.deps.Resolver.TouchRecentDataset(r.Context(), session, identity, datasetID)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, useDatasetResponse{Touched: touched})
	}
}

func readDatasetID(r *http.Request) (any, error) {
	if isJSON(r) {
		var req useDatasetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return req.DatasetID, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	if ids := r.Form["dataset_id[]"]; len(ids) > 0 {
		return ids, nil
	}
	return r.Form["dataset_id"], nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

type createOrderRequest struct {
	GranuleQuery string `json:"granule_query"`
	OptionID     string `json:"option_id"`
	OptionName   string `json:"option_name"`
	OptionModel  string `json:"option_model"`
}

// CreateOrderHandler orders every granule the query matches. A failure after
// the draft order was created reports its id in the X-Order-Id header.
func (s *Server) CreateOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithProblem(w, r, http.StatusBadRequest, "Bad Request", "invalid request body")
			return
		}
		query, err := url.ParseQuery(req.GranuleQuery)
		if err != nil {
			respondWithProblem(w, r, http.StatusBadRequest, "Bad Request", "invalid granule_query")
			return
		}

		session := SessionFrom(r.Context())
		result, err := s.deps.Orders.Submit(r.Context(), orders.Request{
			CatalogQuery:  query,
			OptionID:      req.OptionID,
			OptionName:    req.OptionName,
			OptionPayload: req.OptionModel,
			Requester:     IdentityFrom(r.Context()),
			Token:         session.AccessToken(),
		})
		if err != nil {
			var stepErr *orders.StepError
			if errors.As(err, &stepErr) && stepErr.OrderID != "" {
				w.Header().Set("X-Order-Id", stepErr.OrderID)
			}
			s.respondWithError(w, r, err)
			return
		}
		if result.DroppedItems == nil {
			result.DroppedItems = []orders.DroppedItem{}
		}
		respondWithJSON(w, http.StatusCreated, result)
	}
}
