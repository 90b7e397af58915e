// Package access decides who may administer the relay.
package access

import (
	"context"
	"strconv"
	"strings"

	"github.com/m3rciful/topicrelay/internal/settings"
)

// Control answers admin membership questions. Primary admins come from
// process configuration; delegated admins are stored under authorized_admins.
type Control struct {
	primary  map[string]struct{}
	settings *settings.Resolver
}

// New builds a Control for the given primary admin ids.
func New(primaryIDs []string, resolver *settings.Resolver) *Control {
	primary := make(map[string]struct{}, len(primaryIDs))
	for _, id := range primaryIDs {
		if id = strings.TrimSpace(id); id != "" {
			primary[id] = struct{}{}
		}
	}
	return &Control{primary: primary, settings: resolver}
}

// IsPrimaryAdmin reports exact membership in the configured admin list.
func (c *Control) IsPrimaryAdmin(id int64) bool {
	_, ok := c.primary[strconv.FormatInt(id, 10)]
	return ok
}

// IsAuthorizedAdmin reports whether id is a primary or delegated admin.
func (c *Control) IsAuthorizedAdmin(ctx context.Context, id int64) bool {
	if c.IsPrimaryAdmin(id) {
		return true
	}
	if c.settings == nil {
		return false
	}
	want := strconv.FormatInt(id, 10)
	for _, admin := range c.settings.Strings(ctx, settings.KeyAuthorizedAdmins) {
		if admin == want {
			return true
		}
	}
	return false
}
