package outbox

const activityRecordedSchema = `{
  "type": "object",
  "title": "SwimActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date-time"},
    "distance": {"type": "integer", "minimum": 0},
    "duration_minutes": {"type": "integer", "minimum": 0},
    "pace": {"type": "string"},
    "feeling": {"type": "string", "enum": ["excellent", "good", "regular", "tired", "bad"]},
    "interval_count": {"type": "integer", "minimum": 0},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "tenant_id", "user_id", "date", "distance", "duration_minutes", "pace", "feeling", "recorded_at"],
  "additionalProperties": false
}`

const activityDeletedSchema = `{
  "type": "object",
  "title": "SwimActivityDeleted",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "deleted_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "tenant_id", "user_id", "deleted_at"],
  "additionalProperties": false
}`
