package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// mutationSpec describes one schema-aware write operation: how to prompt the
// model for it, and how to phrase the outcome to the user.
type mutationSpec struct {
	tool        string
	noun        string // "insertion"
	gerund      string // "inserting"
	resultTag   string // "insert_result"
	buildPrompt func(schemaJSON, userInput string) string
	success     func(table string, params map[string]interface{}) string
	failure     func(table, detail string) string
}

var mutationSpecs = map[Intent]mutationSpec{
	IntentInsert: {
		tool:        "insert_data",
		noun:        "insertion",
		gerund:      "inserting",
		resultTag:   "insert_result",
		buildPrompt: insertPrompt,
		success: func(table string, params map[string]interface{}) string {
			data, _ := params["data"].(map[string]interface{})
			return fmt.Sprintf("Successfully inserted record into %s table with %d fields.", table, len(data))
		},
		failure: func(table, detail string) string {
			return fmt.Sprintf("Error inserting data into %s: %s", table, detail)
		},
	},
	IntentDelete: {
		tool:        "delete_data",
		noun:        "deletion",
		gerund:      "deleting",
		resultTag:   "delete_result",
		buildPrompt: deletePrompt,
		success: func(table string, params map[string]interface{}) string {
			return fmt.Sprintf("Successfully deleted record(s) from %s.", table)
		},
		failure: func(table, detail string) string {
			return fmt.Sprintf("Error deleting data from %s: %s", table, detail)
		},
	},
	IntentUpdate: {
		tool:        "update_data",
		noun:        "update",
		gerund:      "updating",
		resultTag:   "update_result",
		buildPrompt: updatePrompt,
		success: func(table string, params map[string]interface{}) string {
			return fmt.Sprintf("Successfully updated record(s) in %s.", table)
		},
		failure: func(table, detail string) string {
			return fmt.Sprintf("Error updating data in %s: %s", table, detail)
		},
	},
}

// classifyMutationResult turns a raw tool payload into a user-facing
// sentence. A JSON payload succeeds when its message mentions "successfully"
// or its object tag matches the operation; a non-JSON payload fails only when
// it reads like an error.
func classifyMutationResult(spec mutationSpec, resultText string, params map[string]interface{}) string {
	table, _ := params["table"].(string)
	if table == "" {
		table = "table"
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(resultText), &payload); err != nil {
		lower := strings.ToLower(resultText)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			return spec.failure(table, resultText)
		}
		return spec.success(table, params)
	}

	message, _ := payload["message"].(string)
	if strings.Contains(strings.ToLower(message), "successfully") || payload["object"] == spec.resultTag {
		return spec.success(table, params)
	}
	return spec.failure(table, resultText)
}
