package event

// EnvelopeSchema is the JSON Schema for raw runtime event envelopes. It gates
// structure only; per-type field requirements are enforced by the codec.
const EnvelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {
      "type": "string",
      "enum": ["stop", "tool_result", "message"]
    },
    "sessionId": {
      "type": "string"
    },
    "messageType": {
      "type": "string",
      "enum": ["text", "thinking", "tool_use", "workflow", "result", "error"]
    },
    "text": {
      "type": "string"
    },
    "streamDone": {
      "type": "boolean"
    },
    "workflow": {
      "type": "string"
    },
    "agentName": {
      "type": "string"
    },
    "toolId": {
      "type": "string"
    },
    "toolName": {
      "type": "string"
    },
    "params": {
      "type": "object"
    },
    "success": {
      "type": "boolean"
    }
  }
}`
