package clientapi

import (
	"fmt"
	"net/http"

	serverops "github.com/smokeyworks/smokey/apiframework"
	"github.com/smokeyworks/smokey/clientservice"
	"github.com/smokeyworks/smokey/clientstore"
)

// AddClientRoutes registers the client contract endpoints.
func AddClientRoutes(mux *http.ServeMux, clientService clientservice.Service) {
	h := &clientHandler{service: clientService}

	mux.HandleFunc("POST /clients", h.createClient)
	mux.HandleFunc("GET /clients", h.listClients)
	mux.HandleFunc("GET /clients/{id}", h.getClient)
	mux.HandleFunc("PUT /clients/{id}", h.updateClient)
	mux.HandleFunc("POST /clients/{id}/activate", h.activateClient)
	mux.HandleFunc("POST /clients/{id}/close", h.closeClient)
	mux.HandleFunc("DELETE /clients/{id}", h.deleteClient)
}

type clientHandler struct {
	service clientservice.Service
}

// Registers a client on contract signature
func (h *clientHandler) createClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := serverops.Decode[clientservice.CreateClientRequest](r) // @request clientservice.CreateClientRequest
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	client, err := h.service.CreateClient(ctx, req)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.CreateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusCreated, client) // @response clientstore.Client
}

// Lists all clients
func (h *clientHandler) listClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clients, err := h.service.ListClients(ctx)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.ListOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, clients) // @response []*clientstore.Client
}

// Retrieves one client
func (h *clientHandler) getClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The client identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.GetOperation)
		return
	}

	client, err := h.service.GetClient(ctx, id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.GetOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, client) // @response clientstore.Client
}

// Updates client fields
//
// Contract terms are rejected with a conflict once the client is active.
func (h *clientHandler) updateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The client identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}

	client, err := serverops.Decode[clientstore.Client](r) // @request clientstore.Client
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	client.ID = id
	updated, err := h.service.UpdateClient(ctx, &client)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, updated) // @response clientstore.Client
}

// Activates a pending contract
func (h *clientHandler) activateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The client identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}

	client, err := h.service.ActivateClient(ctx, id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, client) // @response clientstore.Client
}

// Closes an active contract
func (h *clientHandler) closeClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The client identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.UpdateOperation)
		return
	}

	client, err := h.service.CloseClient(ctx, id)
	if err != nil {
		_ = serverops.Error(w, r, err, serverops.UpdateOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, client) // @response clientstore.Client
}

// Deletes a non-active client
func (h *clientHandler) deleteClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := serverops.GetPathParam(r, "id", "The client identifier.")
	if id == "" {
		_ = serverops.Error(w, r, fmt.Errorf("missing id parameter %w", serverops.ErrBadPathValue), serverops.DeleteOperation)
		return
	}

	if err := h.service.DeleteClient(ctx, id); err != nil {
		_ = serverops.Error(w, r, err, serverops.DeleteOperation)
		return
	}

	_ = serverops.Encode(w, r, http.StatusOK, "client removed") // @response string
}
