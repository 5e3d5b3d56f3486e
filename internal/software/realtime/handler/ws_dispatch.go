package handler

import (
	"context"
	"encoding/json"
	"time"

	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/general/websocket"
	"fleet-realtime/internal/ports"
)

var errUnknownEvent = apperr.Validation("unknown event type")

// EventDispatcher validates inbound socket events and routes them to the
// realtime service. It keeps no state of its own.
type EventDispatcher struct {
	svc    ports.RealtimeService
	logger *logger.Logger
}

var _ websocket.EventHandler = (*EventDispatcher)(nil)

func NewEventDispatcher(svc ports.RealtimeService, logger *logger.Logger) *EventDispatcher {
	return &EventDispatcher{svc: svc, logger: logger}
}

func (d *EventDispatcher) Connect(ctx context.Context, sub ports.Subscriber, identity user.Identity) (contracts.AuthSuccess, error) {
	return d.svc.Connect(ctx, sub, identity)
}

func (d *EventDispatcher) Disconnect(ctx context.Context, connID string) {
	d.svc.Disconnect(ctx, connID)
}

// HandleEvent runs one inbound frame to completion.
func (d *EventDispatcher) HandleEvent(ctx context.Context, s ports.Session, reply websocket.Replier, in contracts.InboundFrame) error {
	switch in.Type {
	// ----- tracking -----
	case contracts.EventJoinTracking:
		var req contracts.TrackingRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.JoinTracking(ctx, s, req.DriverID, req.VehicleID)

	case contracts.EventLocationUpdate:
		var req contracts.LocationUpdateRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		reading := req.Reading()
		reading.At = time.Now()
		_, err := d.svc.UpdateLocation(ctx, s, reading)
		return err

	case contracts.EventStopTracking:
		var req contracts.TrackingRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.StopTracking(ctx, s, req.DriverID, req.VehicleID)

	case contracts.EventRequestLocation:
		var req contracts.RequestLocation
		if err := decode(in, &req); err != nil {
			return err
		}
		loc, err := d.svc.CurrentLocation(ctx, req.DriverID)
		if err != nil {
			return err
		}
		reply.Reply(contracts.EventLocationUpdate, contracts.NewLocationRecord(loc))
		return nil

	case contracts.EventGetAllLocations:
		reply.Reply(contracts.EventAllLocations, contracts.NewLocationRecords(d.svc.AllLocations(ctx)))
		return nil

	case contracts.EventGetActiveDrivers:
		reply.Reply(contracts.EventActiveDriversCount, d.svc.ActiveDrivers(ctx))
		return nil

	// ----- groups -----
	case contracts.EventJoinDispatch:
		return d.svc.JoinDispatch(ctx, s)

	case contracts.EventJoinDrivers:
		return d.svc.JoinDrivers(ctx, s)

	case contracts.EventJoinNotifications:
		var req contracts.JoinNotificationsRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.JoinNotifications(ctx, s, req.Role)

	// ----- notifications -----
	case contracts.EventSendNotification:
		var req contracts.SendNotificationRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		_, err := d.svc.SendNotification(ctx, s, ports.NotificationInput{
			TargetUserID: req.TargetUserID,
			TargetRole:   req.TargetRole,
			Type:         notification.Type(req.Type),
			Title:        req.Title,
			Message:      req.Message,
			RelatedID:    req.RelatedID,
		})
		return err

	case contracts.EventAssignmentCreated:
		var req contracts.AssignmentCreatedRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.AssignmentCreated(ctx, s, req)

	case contracts.EventAssignmentStatus:
		var req contracts.AssignmentStatusRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.AssignmentStatusUpdate(ctx, s, req)

	case contracts.EventMaintenanceAlert:
		var req contracts.MaintenanceAlertRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.MaintenanceAlert(ctx, s, req)

	case contracts.EventFuelAlert:
		var req contracts.FuelAlertRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.FuelAlert(ctx, s, req)

	// ----- chat -----
	case contracts.EventJoinConversation:
		var req contracts.ConversationRef
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.JoinConversation(ctx, s, req.ConversationID)

	case contracts.EventStartConversation:
		var req contracts.StartConversationRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		conv, err := d.svc.StartConversation(ctx, s, ports.StartConversationInput{
			OtherUserID:   req.Other(),
			OtherUserName: req.OtherUserName,
			OtherUserRole: req.OtherUserRole,
		})
		if err != nil {
			return err
		}
		reply.Reply(contracts.EventConversationStarted, contracts.ConversationStarted{
			ConversationID: conv.ID,
			Participants:   conv.ParticipantIDs(),
		})
		return nil

	case contracts.EventSendMessage:
		var req contracts.SendMessageRequest
		if err := decode(in, &req); err != nil {
			return err
		}
		_, err := d.svc.SendMessage(ctx, s, ports.SendMessageInput{
			ConversationID: req.ConversationID,
			RecipientID:    req.RecipientID,
			Content:        req.Text(),
			Attachments:    req.DomainAttachments(),
		})
		return err

	case contracts.EventTyping, contracts.EventStopTyping:
		var req contracts.ConversationRef
		if err := decode(in, &req); err != nil {
			return err
		}
		return d.svc.Typing(ctx, s, req.ConversationID, in.Type == contracts.EventTyping)

	case contracts.EventMarkRead:
		var req contracts.MessageRef
		if err := decode(in, &req); err != nil {
			return err
		}
		_, err := d.svc.MarkRead(ctx, s, req.MessageID)
		return err

	case contracts.EventDeleteMessage:
		var req contracts.MessageRef
		if err := decode(in, &req); err != nil {
			return err
		}
		_, err := d.svc.DeleteMessage(ctx, s, req.MessageID)
		return err

	case contracts.EventAuth:
		// already authenticated; late auth frames are ignored
		return nil

	default:
		d.logger.Debug(ctx, "ws_unknown_event", "Ignoring unknown event", map[string]any{"event": in.Type})
		return errUnknownEvent
	}
}

// decode reads the frame payload; a missing payload leaves dst zero.
func decode(in contracts.InboundFrame, dst any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(in.Data, dst); err != nil {
		return apperr.Validation("invalid payload for " + in.Type)
	}
	return nil
}
