// Package schemas holds the JSON Schemas of the artifacts the service writes.
package schemas

import _ "embed"

// RunParams is the schema of run_params.json.
//
//go:embed run_params.schema.json
var RunParams string
