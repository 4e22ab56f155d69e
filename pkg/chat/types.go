package chat

// Directive is one tool call extracted from a model response.
type Directive struct {
	Tool   string
	Params map[string]interface{}
}
