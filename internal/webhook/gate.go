package webhook

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Policy decides how groups missing from the allow-list are treated.
type Policy string

const (
	// PolicyAllowList processes listed groups only. An empty list denies all.
	PolicyAllowList Policy = "allowlist"
	// PolicyAllowAll processes every group without consulting the list.
	PolicyAllowAll Policy = "allow_all"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAllowList, PolicyAllowAll:
		return Policy(s), nil
	case "":
		return PolicyAllowList, nil
	default:
		return "", fmt.Errorf("unknown group policy %q", s)
	}
}

// AllowList is the AllowedGroup collaborator.
type AllowList interface {
	IsGroupAllowed(ctx context.Context, groupID string) (bool, error)
}

// Gate is the authorization gate.
type Gate struct {
	logger  *zap.SugaredLogger
	policy  Policy
	list    AllowList
	timeout time.Duration
}

func NewGate(logger *zap.SugaredLogger, policy Policy, list AllowList, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Gate{
		logger:  logger,
		policy:  policy,
		list:    list,
		timeout: timeout,
	}
}

// Allowed reports whether events of groupID may be processed. Lookup errors deny.
func (g *Gate) Allowed(ctx context.Context, groupID string) bool {
	if g.policy == PolicyAllowAll {
		return true
	}
	if groupID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.list.IsGroupAllowed(ctx, groupID)
	if err != nil {
		g.logger.Errorw("Cannot check allow-list", "group_id", groupID, "error", err)
		return false
	}
	return ok
}
