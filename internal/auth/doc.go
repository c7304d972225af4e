// Package auth provides authentication and authorisation for DDC Core.
//
// It implements a 3-tier role model (viewer → operator → admin) with:
//   - Argon2id password hashing (OWASP recommended parameters)
//   - JWT HS256 access tokens validated by signature only (no DB hit)
//   - Refresh token rotation with family-based theft detection
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Viewers can read displays and history but never write features.
// Operators additionally control displays and apply presets. Admins
// manage displays, presets, users, and see the audit log.
package auth
