package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/service"
)

// jobRequest is the body of POST /jobs and POST /jobs/list.
type jobRequest struct {
	ListingURL string `json:"listing_url"`
	PageSize   *int   `json:"page_size"`
	PageIndex  *int   `json:"page_index"`
	Mode       string `json:"mode"`
}

// decodeJob parses and validates a request body. Every returned error is an input error.
func (s *Server) decodeJob(w http.ResponseWriter, r *http.Request) (service.JobRequest, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var in jobRequest
	if err := dec.Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return service.JobRequest{}, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return service.JobRequest{}, errors.New("request body is empty")
		default:
			return service.JobRequest{}, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if dec.More() {
		return service.JobRequest{}, errors.New("request body must contain a single JSON object")
	}

	listing, err := domain.NewListingReference(in.ListingURL)
	if err != nil {
		return service.JobRequest{}, err
	}
	size := s.opts.DefaultPageSize
	if in.PageSize != nil {
		size = *in.PageSize
	}
	index := 1
	if in.PageIndex != nil {
		index = *in.PageIndex
	}
	window, err := domain.NewPageWindow(size, index, domain.WindowLimits{
		MaxPageSize:     s.opts.MaxPageSize,
		MaxListingItems: s.opts.MaxListingItems,
	})
	if err != nil {
		return service.JobRequest{}, err
	}
	mode, err := domain.ParseDeliveryMode(in.Mode, s.opts.DefaultMode)
	if err != nil {
		return service.JobRequest{}, err
	}
	return service.JobRequest{Listing: listing, Window: window, Mode: mode}, nil
}
