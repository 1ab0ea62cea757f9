package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fedopt-io/fedopt/pkg/checkpoint"
	pkgerrors "github.com/fedopt-io/fedopt/pkg/errors"
)

type checkpointReq struct {
	round uint64
}

// MakeHandler exposes the read-only status surface of a running federation:
// current state, last round metrics, and saved checkpoints, plus Prometheus
// metrics and a health probe.
func MakeHandler(backend Backend, ckpt *checkpoint.Store, logger *slog.Logger) http.Handler {
	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(encodeError(logger)),
	}

	mux := chi.NewRouter()

	mux.Get("/state", kithttp.NewServer(
		getStateEndpoint(backend),
		decodeEmptyReq,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/rounds/last", kithttp.NewServer(
		lastMetricsEndpoint(backend),
		decodeEmptyReq,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Route("/checkpoints", func(r chi.Router) {
		r.Get("/", kithttp.NewServer(
			listCheckpointsEndpoint(ckpt),
			decodeEmptyReq,
			encodeResponse,
			opts...,
		).ServeHTTP)
		r.Get("/{round}", kithttp.NewServer(
			getCheckpointEndpoint(ckpt),
			decodeCheckpointReq,
			encodeResponse,
			opts...,
		).ServeHTTP)
	})

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEmptyReq(_ context.Context, _ *http.Request) (any, error) {
	return nil, nil
}

func decodeCheckpointReq(_ context.Context, r *http.Request) (any, error) {
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		return nil, pkgerrors.ErrInvalidData
	}

	return checkpointReq{round: round}, nil
}

func encodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	w.Header().Set("Content-Type", "application/json")

	return json.NewEncoder(w).Encode(response)
}

func encodeError(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(_ context.Context, err error, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, pkgerrors.ErrInvalidData):
			w.WriteHeader(http.StatusBadRequest)
		default:
			logger.Error("request failed", slog.Any("error", err))
			w.WriteHeader(http.StatusInternalServerError)
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}
}
