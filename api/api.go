// Package api carries the OpenAPI contract of the HTTP adapter. The document
// is served at GET /openapi.yaml. Clients generate from it with the
// oapi-codegen version pinned in tools/tools.go.
package api

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
