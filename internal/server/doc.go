// Package server implements the dokpub webhook relay.
//
// The relay listens for GitHub push webhooks and, for verified pushes to a
// project's configured branch, performs the same Dokploy trigger call the
// CLI issues: the image is rebuilt and pushed elsewhere (usually by the
// platform itself or a registry pipeline); the relay only asks Dokploy to
// redeploy.
//
// This package provides:
//   - GitHub webhook endpoint handling with HMAC signature verification
//     (via go-github's payload validation)
//   - Per-IP rate limiting
//   - Health and status endpoints for monitoring
//   - Structured logging of all HTTP requests
//   - Per-project trigger locking (one in-flight trigger per project)
package server
