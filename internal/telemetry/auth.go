package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"livestock-collar-backend/internal/model"
)

// ErrUnauthorized is returned when a sample comes from an unknown or disabled
// node, or names a collar the node does not speak for.
var ErrUnauthorized = errors.New("telemetry source not authorized")

// Authorizer decides whether a client may report for a collar. It returns the
// collar code the sample must be recorded against.
type Authorizer interface {
	Authorize(ctx context.Context, clientID, collarCode string) (string, error)
}

// NodeAuthorizer checks clients against the authorized_nodes table. An empty
// collar code in the sample means the node's own collar.
type NodeAuthorizer struct {
	db *gorm.DB
}

// NewNodeAuthorizer creates an authorizer backed by db.
func NewNodeAuthorizer(db *gorm.DB) *NodeAuthorizer {
	return &NodeAuthorizer{db: db}
}

// Authorize implements Authorizer.
func (a *NodeAuthorizer) Authorize(ctx context.Context, clientID, collarCode string) (string, error) {
	code, err := a.CollarCodeForClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	if collarCode != "" && !strings.EqualFold(strings.TrimSpace(collarCode), code) {
		return "", fmt.Errorf("%w: client %q does not report for collar %q", ErrUnauthorized, clientID, collarCode)
	}
	return code, nil
}

// CollarCodeForClient returns the code of the collar bound to an authorized node.
func (a *NodeAuthorizer) CollarCodeForClient(ctx context.Context, clientID string) (string, error) {
	if strings.TrimSpace(clientID) == "" {
		return "", fmt.Errorf("%w: missing client id", ErrUnauthorized)
	}
	var node model.AuthorizedNode
	err := a.db.WithContext(ctx).Preload("Collar").Where("client_id = ?", clientID).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: unknown client %q", ErrUnauthorized, clientID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up node %q: %w", clientID, err)
	}
	if !node.Authorized || node.Collar == nil {
		return "", fmt.Errorf("%w: client %q is not enabled", ErrUnauthorized, clientID)
	}
	return node.Collar.Code, nil
}

// AllowAll trusts the collar code carried by the sample. Meant for trusted
// internal ingestion paths.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(_ context.Context, _ string, collarCode string) (string, error) {
	if strings.TrimSpace(collarCode) == "" {
		return "", fmt.Errorf("%w: missing collar code", ErrUnauthorized)
	}
	return strings.ToUpper(strings.TrimSpace(collarCode)), nil
}
