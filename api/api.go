// Package api embeds the OpenAPI document for the payment service.
package api

import _ "embed"

//go:embed openapi.yml
var OpenAPISpec []byte
