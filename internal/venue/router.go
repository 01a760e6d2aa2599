package venue

import (
	"context"
	"fmt"

	"github.com/edgewatch/edgewatch/internal/model"
)

// Router dispatches each order to the client for its signal's venue.
type Router struct {
	clients map[string]*Client
}

func NewRouter(clients []*Client) *Router {
	byName := make(map[string]*Client, len(clients))
	for _, c := range clients {
		byName[c.Venue()] = c
	}
	return &Router{clients: byName}
}

func (r *Router) Client(name string) (*Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

func (r *Router) SubmitOrder(ctx context.Context, req model.ExecutionRequest) (model.OrderResult, error) {
	c, ok := r.clients[req.Signal.Venue]
	if !ok {
		return model.OrderResult{}, fmt.Errorf("no client for venue %q", req.Signal.Venue)
	}
	return c.SubmitOrder(ctx, req)
}
