package remote

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const defaultStoreName = "docqa session"

// StoreClient manages remote document stores. Each chat session owns exactly
// one store for its lifetime.
type StoreClient struct {
	backend Backend
	logger  *log.Logger
}

func NewStoreClient(backend Backend, logger *log.Logger) *StoreClient {
	if logger == nil {
		logger = log.Default()
	}
	return &StoreClient{backend: backend, logger: logger}
}

// Create allocates a new remote store. The returned id must be released with
// Delete when the session ends.
func (c *StoreClient) Create(ctx context.Context, displayName string) (StoreID, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = defaultStoreName
	}

	id, err := c.backend.CreateStore(ctx, displayName)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &RemoteServiceError{Op: "create store", Err: fmt.Errorf("empty store id returned")}
	}

	c.logger.Printf("created store %s (%q)", id, displayName)
	return id, nil
}

// Delete releases the remote store. A store that is already gone counts as
// deleted; this is a cleanup policy of ours, not a guarantee of the remote API.
func (c *StoreClient) Delete(ctx context.Context, id StoreID) error {
	if id == "" {
		return nil
	}
	if err := c.backend.DeleteStore(ctx, id); err != nil {
		return err
	}
	c.logger.Printf("deleted store %s", id)
	return nil
}
