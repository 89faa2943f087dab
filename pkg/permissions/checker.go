// Package permissions checks the permission list the API gateway forwards
// against the permission a route requires.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "stock.*")
//   - "resource.action" - Specific action (e.g., "stock.read")
//   - "resource.subresource.action" - Nested permission (e.g., "stock.pricing.manage")
package permissions

import (
	"strings"
)

// Stock permissions.
const (
	StockRead          = "stock.read"
	StockReceive       = "stock.receive"
	StockAdjust        = "stock.adjust"
	StockAllocate      = "stock.allocate"
	StockTransfer      = "stock.transfer"
	StockWriteOff      = "stock.write_off"
	StockAlertsManage  = "stock.alerts.manage"
	StockPricingManage = "stock.pricing.manage"
)

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "stock.*" matches "stock.read", "stock.alerts.manage", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the required permissions.
func HasAnyPermission(userPerms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(userPerms, req) {
			return true
		}
	}
	return false
}

// All lists every stock permission, for validation and role editors.
var All = []string{
	StockRead,
	StockReceive,
	StockAdjust,
	StockAllocate,
	StockTransfer,
	StockWriteOff,
	StockAlertsManage,
	StockPricingManage,
	"stock.*",
	"*",
}

// IsValidPermission checks if a permission string is known or at least has
// the resource.action shape.
func IsValidPermission(perm string) bool {
	if perm == "*" {
		return true
	}
	for _, p := range All {
		if p == perm {
			return true
		}
	}
	return len(strings.Split(perm, ".")) >= 2
}
