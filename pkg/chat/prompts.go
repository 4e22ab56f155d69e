package chat

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/dbchat/pkg/connectors"
)

func buildSystemPrompt(descriptors []connectors.ToolDescriptor, defaultTable, defaultSchema string) string {
	lines := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		lines = append(lines, fmt.Sprintf("- %s: %s", d.Signature(), d.Description))
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant with access to database tools. ")
	b.WriteString("You have access to the following tools:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nIMPORTANT INSTRUCTIONS:\n")
	b.WriteString("- When users ask about data counts, retrieving data, or querying information, use the get_data tool.\n")
	b.WriteString("- When users ask about table structure or schema, use the get_schema tool.\n")
	b.WriteString("- For data insertion requests, they will be handled by a specialized process.\n")
	b.WriteString("- Choose default table and schema as follows:\n")
	fmt.Fprintf(&b, "  - Default Schema: %s\n", defaultSchema)
	fmt.Fprintf(&b, "  - Default Table: %s\n", defaultTable)
	b.WriteString(" - Always stay with default table and schema unless specified otherwise.\n")
	fmt.Fprintf(&b, "- If the user fails to mention the table name, use '%s' as default.\n", defaultTable)
	b.WriteString("- If you need to use a tool, respond ONLY in this exact format:\n")
	b.WriteString("  TOOL: <tool_name>\n")
	b.WriteString("  PARAMS: <JSON parameters>\n")
	b.WriteString("- If no tool is needed, provide a clear, natural, conversational response in plain text.\n")
	b.WriteString("- Never respond in JSON format unless specifically asked.\n")
	b.WriteString("- Be helpful, concise, and human-like in your responses.\n")
	b.WriteString("- Answer questions directly without unnecessary formatting.\n")
	b.WriteString("- When calling tools, always use the exact parameter names as defined:\n")
	b.WriteString("  - For delete_data, use:\n")
	b.WriteString("    TOOL: delete_data\n")
	b.WriteString("    PARAMS: {\"table\": \"<table_name>\", \"where\": {\"<column>\": \"<value>\"}}\n")
	b.WriteString("  - For update_data, always use:\n")
	b.WriteString("    TOOL: update_data\n")
	b.WriteString("    PARAMS: {\"table\": \"<table_name>\", \"data\": {\"<column_to_update>\": \"<new_value>\"}, \"where\": {\"<column_to_match>\": \"<match_value>\"}}\n")
	return b.String()
}

func insertPrompt(schemaJSON, userInput string) string {
	return fmt.Sprintf(`You are a database insertion assistant. The user wants to insert data into a database.

DATABASE SCHEMA:
%s

USER INPUT: "%s"

TASK: Analyze the user input and create appropriate insert_data parameters based on the schema.

INSTRUCTIONS:
1. Identify which table the user wants to insert data into
2. Extract the data values from the user input
3. Match the extracted data with the appropriate schema columns
4. Handle data type conversions (strings, numbers, dates, etc.)
5. Set reasonable defaults for missing required fields if possible
6. Return ONLY in this exact format:

TOOL: insert_data
PARAMS: {"table": "<table_name>", "data": {"column1": "value1", "column2": "value2"}}

IMPORTANT:
- Use exact column names from the schema
- Convert values to appropriate data types
- Ensure all JSON is properly formatted`, schemaJSON, userInput)
}

func deletePrompt(schemaJSON, userInput string) string {
	return fmt.Sprintf(`You are a database assistant. The user wants to delete data from a database.

DATABASE SCHEMA:
%s

USER INPUT: "%s"

TASK: Analyze the user input and create appropriate delete_data parameters based on the schema.

INSTRUCTIONS:
1. Identify which table the user wants to delete data from
2. Extract the filter conditions from the user input
3. Match the extracted columns with the schema
4. Return ONLY in this exact format:

TOOL: delete_data
PARAMS: {"table": "<table_name>", "where": {"column1": "value1"}}`, schemaJSON, userInput)
}

func updatePrompt(schemaJSON, userInput string) string {
	return fmt.Sprintf(`You are a database assistant. The user wants to update data in a database.

DATABASE SCHEMA:
%s

USER INPUT: "%s"

TASK: Analyze the user input and create appropriate update_data parameters based on the schema.

INSTRUCTIONS:
1. Identify which table the user wants to update
2. Extract the columns to update and their new values from the user input
3. Extract the filter conditions (where clause) from the user input
4. Match the extracted columns with the schema
5. Return ONLY in this exact format:

TOOL: update_data
PARAMS: {"table": "<table_name>", "data": {"column1": "new_value"}, "where": {"column2": "match_value"}}`, schemaJSON, userInput)
}

func interpretationPrompt(query, toolName, dataJSON string) string {
	return fmt.Sprintf(`The user asked: "%s"

The tool '%s' returned this data:
%s

Please provide a clear, direct answer to the user's question based on this data.
Be concise and human-friendly. Focus on answering exactly what they asked.
If they asked for a count, give the number. If they asked for specific information, extract and present it clearly.
Do not include JSON or technical details unless specifically requested.`, query, toolName, dataJSON)
}
