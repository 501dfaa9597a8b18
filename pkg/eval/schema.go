package eval

// flagDocumentSchema validates remote flag documents before they reach the store.
const flagDocumentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["flags"],
  "properties": {
    "flags": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["state", "variants", "defaultVariant"],
        "properties": {
          "state": {"enum": ["ENABLED", "DISABLED"]},
          "variants": {
            "type": "object",
            "minProperties": 1,
            "additionalProperties": {"type": ["boolean", "string"]}
          },
          "defaultVariant": {"type": "string"},
          "targeting": {"type": "object"}
        }
      }
    },
    "metadata": {"type": "object"}
  }
}`
