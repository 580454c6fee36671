package outbox

const activityIngestedSchema = `{
  "type": "object",
  "title": "ActivityIngested",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "source": {"type": "string"},
    "type": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "source", "type", "occurred_at"],
  "additionalProperties": false
}`

const activityVerifiedSchema = `{
  "type": "object",
  "title": "ActivityVerified",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "fraud_score": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "fraud_score", "occurred_at"],
  "additionalProperties": false
}`

const activityScoredSchema = `{
  "type": "object",
  "title": "ActivityScored",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "points": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "points", "occurred_at"],
  "additionalProperties": false
}`

const activityStateChangedSchema = `{
  "type": "object",
  "title": "ActivityStateChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "state": {"type": "string"},
    "reason": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "state", "occurred_at"],
  "additionalProperties": false
}`

const rewardIssuedSchema = `{
  "type": "object",
  "title": "RewardIssued",
  "properties": {
    "user_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "amount": {"type": "integer"},
    "reason": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "activity_id", "amount", "reason", "occurred_at"],
  "additionalProperties": false
}`
