package service

import (
	"context"
	"strings"

	"giftflow/internal/model"
	"giftflow/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// --- DTOs ---

type EventRequest struct {
	RecipientUserID string                `json:"recipient_user_id"`
	RecipientEmail  string                `json:"recipient_email"`
	RecipientName   string                `json:"recipient_name"`
	DateType        string                `json:"date_type" binding:"required"`
	EventDate       string                `json:"event_date" binding:"required"`
	Recurring       *bool                 `json:"recurring"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
}

type EventResponse struct {
	ID              string                `json:"id"`
	RecipientUserID *string               `json:"recipient_user_id"`
	RecipientEmail  string                `json:"recipient_email"`
	RecipientName   string                `json:"recipient_name"`
	DateType        string                `json:"date_type"`
	EventDate       string                `json:"event_date"`
	Recurring       bool                  `json:"recurring"`
	NextOccurrence  *string               `json:"next_occurrence"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	CreatedAt       string                `json:"created_at"`
}

// --- Interface ---

type EventService interface {
	Create(ctx context.Context, userID uuid.UUID, req EventRequest) (EventResponse, error)
	Update(ctx context.Context, userID, id uuid.UUID, req EventRequest) (EventResponse, error)
	Get(ctx context.Context, userID, id uuid.UUID) (EventResponse, error)
	List(ctx context.Context, userID uuid.UUID) ([]EventResponse, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type eventService struct {
	events repository.EventRepository
	users  repository.UserRepository
	today  func() model.Date
}

func NewEventService(events repository.EventRepository, users repository.UserRepository) EventService {
	return &eventService{
		events: events,
		users:  users,
		today:  func() model.Date { return model.DateOf(utcNow()) },
	}
}

// --- Implementation ---

func (s *eventService) Create(ctx context.Context, userID uuid.UUID, req EventRequest) (EventResponse, error) {
	event := model.GiftEvent{UserID: userID, Recurring: true}
	if err := s.apply(ctx, &event, req); err != nil {
		return EventResponse{}, err
	}
	if err := s.events.Create(ctx, &event); err != nil {
		return EventResponse{}, mapRepoError("event", err)
	}
	return s.toResponse(event), nil
}

func (s *eventService) Update(ctx context.Context, userID, id uuid.UUID, req EventRequest) (EventResponse, error) {
	event, err := s.events.FindForUser(ctx, userID, id)
	if err != nil {
		return EventResponse{}, mapRepoError("event", err)
	}
	if err := s.apply(ctx, event, req); err != nil {
		return EventResponse{}, err
	}
	if err := s.events.Save(ctx, event); err != nil {
		return EventResponse{}, mapRepoError("event", err)
	}
	return s.toResponse(*event), nil
}

func (s *eventService) Get(ctx context.Context, userID, id uuid.UUID) (EventResponse, error) {
	event, err := s.events.FindForUser(ctx, userID, id)
	if err != nil {
		return EventResponse{}, mapRepoError("event", err)
	}
	return s.toResponse(*event), nil
}

func (s *eventService) List(ctx context.Context, userID uuid.UUID) ([]EventResponse, error) {
	events, err := s.events.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]EventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, s.toResponse(e))
	}
	return res, nil
}

func (s *eventService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return mapRepoError("event", s.events.Delete(ctx, userID, id))
}

func (s *eventService) apply(ctx context.Context, event *model.GiftEvent, req EventRequest) error {
	dateType := model.DateType(strings.ToLower(strings.TrimSpace(req.DateType)))
	if !dateType.Valid() {
		return validationError("date_type must be one of birthday, anniversary, holiday, custom")
	}
	date, err := model.ParseDate(strings.TrimSpace(req.EventDate))
	if err != nil {
		return validationError("%v", err)
	}

	recipientID, email, err := resolveRecipient(ctx, s.users, req.RecipientUserID, req.RecipientEmail)
	if err != nil {
		return err
	}

	event.DateType = dateType
	event.EventDate = date
	event.RecipientUserID = recipientID
	event.RecipientEmail = email
	event.RecipientName = strings.TrimSpace(req.RecipientName)
	if req.Recurring != nil {
		event.Recurring = *req.Recurring
	}
	event.ShippingAddress = datatypes.NewJSONType(req.ShippingAddress)
	return nil
}

func (s *eventService) toResponse(e model.GiftEvent) EventResponse {
	res := EventResponse{
		ID:              e.ID.String(),
		RecipientEmail:  e.RecipientEmail,
		RecipientName:   e.RecipientName,
		DateType:        string(e.DateType),
		EventDate:       e.EventDate.String(),
		Recurring:       e.Recurring,
		ShippingAddress: e.ShippingAddress.Data(),
		CreatedAt:       e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if e.RecipientUserID != nil {
		id := e.RecipientUserID.String()
		res.RecipientUserID = &id
	}
	if next, ok := e.NextOccurrence(s.today()); ok {
		d := next.String()
		res.NextOccurrence = &d
	}
	return res
}

// resolveRecipient accepts a platform user id or an email; an email that belongs to a known
// user resolves to that user, otherwise it stays a pending invite.
func resolveRecipient(ctx context.Context, users repository.UserRepository, rawID, rawEmail string) (*uuid.UUID, string, error) {
	rawID = strings.TrimSpace(rawID)
	email := strings.ToLower(strings.TrimSpace(rawEmail))

	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, "", validationError("recipient_user_id must be a UUID")
		}
		user, err := users.FindByID(ctx, id)
		if err != nil {
			return nil, "", validationError("recipient user %s not found", id)
		}
		return &id, user.Email, nil
	}
	if email == "" {
		return nil, "", validationError("a recipient user id or email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, "", validationError("recipient_email is not a valid address")
	}
	if user, err := users.FindByEmail(ctx, email); err == nil {
		return &user.ID, user.Email, nil
	}
	return nil, email, nil
}
