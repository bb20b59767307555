package clientsdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/smokeyworks/smokey/clientservice"
	"github.com/smokeyworks/smokey/clientstore"
)

// HTTPClientService implements the clientservice.Service interface
// using HTTP calls to the API
type HTTPClientService struct {
	httpService
}

// NewHTTPClientService creates a new HTTP client that implements clientservice.Service
func NewHTTPClientService(baseURL, token string, client *http.Client) clientservice.Service {
	return &HTTPClientService{newHTTPService(baseURL, token, client)}
}

func (s *HTTPClientService) CreateClient(ctx context.Context, req clientservice.CreateClientRequest) (*clientstore.Client, error) {
	var client clientstore.Client
	if err := s.doJSON(ctx, "POST", "/clients", req, http.StatusCreated, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *HTTPClientService) GetClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	var client clientstore.Client
	if err := s.doJSON(ctx, "GET", "/clients/"+url.PathEscape(clientID), nil, http.StatusOK, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *HTTPClientService) UpdateClient(ctx context.Context, client *clientstore.Client) (*clientstore.Client, error) {
	var updated clientstore.Client
	if err := s.doJSON(ctx, "PUT", "/clients/"+url.PathEscape(client.ID), client, http.StatusOK, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *HTTPClientService) ActivateClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	var client clientstore.Client
	if err := s.doJSON(ctx, "POST", "/clients/"+url.PathEscape(clientID)+"/activate", nil, http.StatusOK, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *HTTPClientService) CloseClient(ctx context.Context, clientID string) (*clientstore.Client, error) {
	var client clientstore.Client
	if err := s.doJSON(ctx, "POST", "/clients/"+url.PathEscape(clientID)+"/close", nil, http.StatusOK, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *HTTPClientService) DeleteClient(ctx context.Context, clientID string) error {
	return s.doJSON(ctx, "DELETE", "/clients/"+url.PathEscape(clientID), nil, http.StatusOK, nil)
}

func (s *HTTPClientService) ListClients(ctx context.Context) ([]*clientstore.Client, error) {
	clients := []*clientstore.Client{}
	if err := s.doJSON(ctx, "GET", "/clients", nil, http.StatusOK, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

var _ clientservice.Service = (*HTTPClientService)(nil)
