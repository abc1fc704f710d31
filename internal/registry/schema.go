package registry

import (
	"net/http"
	"strings"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// Argument names every tool accepts in addition to its own parameters
const (
	ArgInstance          = "instance"
	ArgWorkspaceID       = "workspaceId"
	ArgLimit             = "limit"
	ArgStartWith         = "startWith"
	ArgDescriptionFormat = "descriptionFormat"
)

// CommonProperties are the credential-selection arguments of every tool
func CommonProperties() map[string]interface{} {
	return map[string]interface{}{
		ArgInstance:    mcp.StringParam("Configured Productboard instance to use", false),
		ArgWorkspaceID: mcp.StringParam("Workspace ID used to pick the instance when instance is not given", false),
	}
}

func toolDefinition(d Descriptor) protocol.Tool {
	props := CommonProperties()

	for _, p := range d.RequiredParams {
		props[p] = paramSchema(d, p)
	}
	for _, p := range d.OptionalParams {
		props[p] = paramSchema(d, p)
	}

	if d.Paginated {
		props[ArgLimit] = map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of records to return",
			"minimum":     1,
			"maximum":     100,
			"default":     100,
		}
		props[ArgStartWith] = map[string]interface{}{
			"type":        "integer",
			"description": "Number of records to skip",
			"minimum":     0,
			"default":     0,
		}
	}
	if len(d.MarkdownFields) > 0 {
		props[ArgDescriptionFormat] = map[string]interface{}{
			"type":        "string",
			"description": "Format of " + strings.Join(d.MarkdownFields, ", ") + "; markdown is converted to HTML",
			"enum":        []string{"html", "markdown"},
			"default":     "html",
		}
	}

	return mcp.NewTool(d.Name, d.Description, mcp.ObjectSchema(d.Description, props, d.RequiredParams))
}

func paramSchema(d Descriptor, name string) map[string]interface{} {
	desc := paramDescription(d, name)
	switch d.ParamType(name) {
	case "number":
		return mcp.NumberParam(desc, false)
	case "integer":
		return map[string]interface{}{"type": "integer", "description": desc}
	case "boolean":
		return mcp.BooleanParam(desc, false)
	case "array":
		return mcp.ArraySchema(desc, map[string]interface{}{"type": "string"})
	case "object":
		return map[string]interface{}{"type": "object", "description": desc}
	default:
		return mcp.StringParam(desc, false)
	}
}

func paramDescription(d Descriptor, name string) string {
	for _, p := range d.PathParams() {
		if p == name {
			return "Path parameter " + name
		}
	}
	if d.HTTPMethod == http.MethodGet || d.IsQueryParam(name) {
		return "Query parameter " + name
	}
	return "Request field " + name
}
