// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package access decides whether a request may proceed based on who the
// caller is and which platform surface the endpoint serves.
//
// Checks run in a fixed order: authentication first, then platform, then
// role. The first failing check decides the outcome, so an anonymous caller
// on an admin-only endpoint is reported as unauthenticated, not as lacking
// the role.
package access

import (
	"github.com/trailhead/trailhead/internal/auth"
)

// Platform restricts an endpoint to one client surface.
type Platform string

const (
	// PlatformAny places no platform restriction on the endpoint.
	PlatformAny Platform = ""
	// PlatformMobileOnly admits only regular users. Admin accounts are
	// deliberately shut out of mobile surfaces; there is no admin bypass.
	PlatformMobileOnly Platform = "MOBILE_ONLY"
	// PlatformAdminWebOnly admits only admin accounts.
	PlatformAdminWebOnly Platform = "ADMIN_WEB_ONLY"
)

// Reason explains a denial.
type Reason string

const (
	ReasonAllowed         Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonWrongPlatform   Reason = "wrong_platform"
	ReasonMissingRole     Reason = "missing_role"
)

// Policy describes what an endpoint requires of its caller.
type Policy struct {
	// RequiresAuth demands a verified identity. Policies with a platform or
	// role requirement imply it even when left false.
	RequiresAuth bool
	// RequiredRole, when set, is the exact role the caller must hold.
	RequiredRole auth.Role
	// Platform, when set, restricts which client surface may call.
	Platform Platform
}

// Public is the zero policy: anyone may call.
var Public = Policy{}

// Authenticated admits any verified identity.
var Authenticated = Policy{RequiresAuth: true}

// MobileOnly admits verified regular users.
var MobileOnly = Policy{RequiresAuth: true, Platform: PlatformMobileOnly}

// AdminWebOnly admits verified admins.
var AdminWebOnly = Policy{RequiresAuth: true, Platform: PlatformAdminWebOnly}

// Decision is the outcome of evaluating a policy for a caller.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// restricted reports whether the policy demands anything of the caller.
func (p Policy) restricted() bool {
	return p.RequiresAuth || p.RequiredRole != "" || p.Platform != PlatformAny
}

// Decide evaluates a policy against the caller's claims. A nil claims value
// means the caller is anonymous. Any restriction evaluated against an
// anonymous caller fails closed.
func Decide(p Policy, claims *auth.Claims) Decision {
	if !p.restricted() {
		return allow()
	}
	if claims == nil {
		return deny(ReasonUnauthenticated)
	}

	switch p.Platform {
	case PlatformMobileOnly:
		if claims.Role != auth.RoleUser {
			return deny(ReasonWrongPlatform)
		}
	case PlatformAdminWebOnly:
		if claims.Role != auth.RoleAdmin {
			return deny(ReasonWrongPlatform)
		}
	}

	if p.RequiredRole != "" && claims.Role != p.RequiredRole {
		return deny(ReasonMissingRole)
	}

	return allow()
}
