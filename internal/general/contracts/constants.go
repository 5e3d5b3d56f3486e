package contracts

// Inbound events (client -> server).
const (
	EventAuth = "auth"

	EventJoinTracking      = "driver:join_tracking"
	EventLocationUpdate    = "driver:location_update"
	EventStopTracking      = "driver:stop_tracking"
	EventRequestLocation   = "map:request_location"
	EventGetAllLocations   = "map:get_all_locations"
	EventGetActiveDrivers  = "system:get_active_drivers"
	EventJoinDispatch      = "user:join_dispatch"
	EventJoinDrivers       = "user:join_drivers"
	EventJoinNotifications = "user:join_notifications"
	EventSendNotification  = "notification:send"
	EventJoinConversation  = "chat:join_conversation"
	EventStartConversation = "chat:start_conversation"
	EventSendMessage       = "chat:send_message"
	EventTyping            = "chat:typing"
	EventStopTyping        = "chat:stop_typing"
	EventMarkRead          = "chat:mark_read"
	EventDeleteMessage     = "chat:delete_message"
	EventAssignmentCreated = "assignment:created"
	EventAssignmentStatus  = "assignment:status_update"
	EventMaintenanceAlert  = "vehicle:maintenance_alert"
	EventFuelAlert         = "vehicle:fuel_alert"
)

// Outbound events (server -> client).
const (
	EventAuthSuccess         = "auth_success"
	EventAuthError           = "auth_error"
	EventError               = "error"
	EventSpeedAlert          = "vehicle:speed_alert"
	EventNotification        = "notification:new"
	EventConversationStarted = "chat:conversation_started"
	EventReceiveMessage      = "chat:receive_message"
	EventUserTyping          = "chat:user_typing"
	EventUserStoppedTyping   = "chat:user_stopped_typing"
	EventMessageRead         = "chat:message_read"
	EventMessageDeleted      = "chat:message_deleted"
	EventAllLocations        = "map:all_locations"
	EventActiveDriversCount  = "system:active_drivers_count"
	// EventLocationUpdate and EventAssignmentStatus are reused outbound.
)

// TimeLayout is ISO 8601 in UTC with milliseconds, e.g. 2026-03-01T10:00:00.000Z.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"
