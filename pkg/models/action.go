package models

// Built-in action types.
const (
	ActionTypeUpdateField     = "update_field"
	ActionTypeChangeDealStage = "change_deal_stage"
	ActionTypeSendEmail       = "send_email"
	ActionTypeAddTag          = "add_tag"
	ActionTypeRemoveTag       = "remove_tag"
	ActionTypeCreateTask      = "create_task"
	ActionTypeHTTPRequest     = "http_request"
	ActionTypeLog             = "log"
)

// ActionItem is one configured side effect of an action step. Config keys
// are action-type specific and validated against the type's JSON schema
// when the automation is saved.
type ActionItem struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"   validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}
