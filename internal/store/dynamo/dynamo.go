// Package dynamo stores bookings and holds in DynamoDB. Both tables are keyed
// by slotKey, so one item per slot is enforced by conditional puts.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Secondary index names.
const (
	DateIndex  = "date-index"
	IDIndex    = "id-index"
	OwnerIndex = "owner-index"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func slotKeyAttr(slot schedule.Slot) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"slotKey": &types.AttributeValueMemberS{Value: slot.Key()},
	}
}

type bookingRecord struct {
	SlotKey         string `dynamodbav:"slotKey"`
	ID              string `dynamodbav:"id"`
	Email           string `dynamodbav:"email"`
	Phone           string `dynamodbav:"phone,omitempty"`
	Name            string `dynamodbav:"name,omitempty"`
	ServiceRef      string `dynamodbav:"serviceRef"`
	Date            string `dynamodbav:"date"`
	Time            string `dynamodbav:"time"`
	Price           int64  `dynamodbav:"price"`
	Deposit         int64  `dynamodbav:"deposit"`
	CreatedAt       string `dynamodbav:"createdAt"`
	RescheduledOnce bool   `dynamodbav:"rescheduledOnce"`
}

func toBookingRecord(b reservation.Booking) bookingRecord {
	return bookingRecord{
		SlotKey:         b.Slot().Key(),
		ID:              b.ID,
		Email:           b.Email,
		Phone:           b.Phone,
		Name:            b.Name,
		ServiceRef:      b.ServiceRef,
		Date:            b.Date.String(),
		Time:            b.Time.String(),
		Price:           b.Price,
		Deposit:         b.Deposit,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339Nano),
		RescheduledOnce: b.RescheduledOnce,
	}
}

func (r bookingRecord) booking() (reservation.Booking, error) {
	slot, err := schedule.ParseSlot(r.Date, r.Time)
	if err != nil {
		return reservation.Booking{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("createdAt: %w", err)
	}
	return reservation.Booking{
		ID:              r.ID,
		Email:           r.Email,
		Phone:           r.Phone,
		Name:            r.Name,
		ServiceRef:      r.ServiceRef,
		Date:            slot.Date,
		Time:            slot.Time,
		Price:           r.Price,
		Deposit:         r.Deposit,
		CreatedAt:       created,
		RescheduledOnce: r.RescheduledOnce,
	}, nil
}

// BookingTable persists bookings.
type BookingTable struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewBookingTable builds a booking table backed by the provided client.
func NewBookingTable(client dynamoAPI, tableName string, logger *logging.Logger) *BookingTable {
	if client == nil {
		panic("dynamo: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("dynamo: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingTable{client: client, tableName: tableName, logger: logger}
}

func (t *BookingTable) ListByDate(ctx context.Context, date schedule.Date) ([]reservation.Booking, error) {
	items, err := queryAll(ctx, t.client, &dynamodb.QueryInput{
		TableName:                aws.String(t.tableName),
		IndexName:                aws.String(DateIndex),
		KeyConditionExpression:   aws.String("#date = :date"),
		ExpressionAttributeNames: map[string]string{"#date": "date"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":date": &types.AttributeValueMemberS{Value: date.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: list bookings: %w", err)
	}
	return decodeBookings(items)
}

func (t *BookingTable) FindBySlot(ctx context.Context, slot schedule.Slot) ([]reservation.Booking, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            slotKeyAttr(slot),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: find bookings: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeBookings([]map[string]types.AttributeValue{out.Item})
}

func (t *BookingTable) Get(ctx context.Context, id string) (reservation.Booking, error) {
	items, err := queryAll(ctx, t.client, &dynamodb.QueryInput{
		TableName:              aws.String(t.tableName),
		IndexName:              aws.String(IDIndex),
		KeyConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("dynamo: get booking: %w", err)
	}
	bookings, err := decodeBookings(items)
	if err != nil {
		return reservation.Booking{}, err
	}
	if len(bookings) == 0 {
		return reservation.Booking{}, reservation.ErrNotFound
	}
	return bookings[0], nil
}

// Insert stores b. The slot key is the partition key, so Insert is always
// conditional.
func (t *BookingTable) Insert(ctx context.Context, b reservation.Booking) (reservation.Booking, error) {
	return t.ClaimBookingSlot(ctx, b)
}

// ClaimBookingSlot writes b only if no booking occupies its slot.
func (t *BookingTable) ClaimBookingSlot(ctx context.Context, b reservation.Booking) (reservation.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(toBookingRecord(b))
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("dynamo: failed to marshal booking: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(slotKey)"),
	})
	if isConditionFailed(err) {
		return reservation.Booking{}, reservation.ErrSlotTaken
	}
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("dynamo: failed to persist booking: %w", err)
	}
	return b, nil
}

// Reschedule moves the item to the new slot key in one transaction: the new
// slot must be empty and the old item must still be unflagged.
func (t *BookingTable) Reschedule(ctx context.Context, current reservation.Booking, to schedule.Slot) (reservation.Booking, error) {
	moved := current
	moved.Date, moved.Time = to.Date, to.Time
	moved.RescheduledOnce = true
	item, err := attributevalue.MarshalMap(toBookingRecord(moved))
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("dynamo: failed to marshal booking: %w", err)
	}

	_, err = t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(t.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(slotKey)"),
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(t.tableName),
				Key:                 slotKeyAttr(current.Slot()),
				ConditionExpression: aws.String("id = :id AND rescheduledOnce = :false"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":id":    &types.AttributeValueMemberS{Value: current.ID},
					":false": &types.AttributeValueMemberBOOL{Value: false},
				},
			}},
		},
	})
	if err == nil {
		return moved, nil
	}
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return reservation.Booking{}, fmt.Errorf("dynamo: reschedule booking: %w", err)
	}
	reasons := canceled.CancellationReasons
	if len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
		return reservation.Booking{}, reservation.ErrSlotTaken
	}
	if len(reasons) > 1 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
		if _, err := t.Get(ctx, current.ID); err != nil {
			return reservation.Booking{}, err
		}
		return reservation.Booking{}, reservation.ErrAlreadyRescheduled
	}
	return reservation.Booking{}, fmt.Errorf("dynamo: reschedule booking: %w", err)
}

func decodeBookings(items []map[string]types.AttributeValue) ([]reservation.Booking, error) {
	out := make([]reservation.Booking, 0, len(items))
	for _, item := range items {
		var rec bookingRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("dynamo: failed to unmarshal booking: %w", err)
		}
		b, err := rec.booking()
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode booking %s: %w", rec.ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

type holdRecord struct {
	SlotKey    string `dynamodbav:"slotKey"`
	ID         string `dynamodbav:"id"`
	OwnerEmail string `dynamodbav:"ownerEmail"`
	OwnerPhone string `dynamodbav:"ownerPhone,omitempty"`
	ServiceRef string `dynamodbav:"serviceRef"`
	Date       string `dynamodbav:"date"`
	Time       string `dynamodbav:"time"`
	ExpiresAt  int64  `dynamodbav:"expiresAt"` // unix millis
	TTL        int64  `dynamodbav:"ttl"`       // unix seconds, for table TTL cleanup
}

func toHoldRecord(h reservation.Hold) holdRecord {
	return holdRecord{
		SlotKey:    h.Slot().Key(),
		ID:         h.ID,
		OwnerEmail: reservation.NormalizeEmail(h.Email),
		OwnerPhone: h.Phone,
		ServiceRef: h.ServiceRef,
		Date:       h.Date.String(),
		Time:       h.Time.String(),
		ExpiresAt:  h.ExpiresAt.UnixMilli(),
		TTL:        h.ExpiresAt.Add(time.Hour).Unix(),
	}
}

func (r holdRecord) hold() (reservation.Hold, error) {
	slot, err := schedule.ParseSlot(r.Date, r.Time)
	if err != nil {
		return reservation.Hold{}, err
	}
	return reservation.Hold{
		ID:         r.ID,
		Email:      r.OwnerEmail,
		Phone:      r.OwnerPhone,
		ServiceRef: r.ServiceRef,
		Date:       slot.Date,
		Time:       slot.Time,
		ExpiresAt:  time.UnixMilli(r.ExpiresAt).UTC(),
	}, nil
}

// HoldTable persists holds.
type HoldTable struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewHoldTable builds a hold table backed by the provided client.
func NewHoldTable(client dynamoAPI, tableName string, logger *logging.Logger) *HoldTable {
	if client == nil {
		panic("dynamo: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("dynamo: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HoldTable{client: client, tableName: tableName, logger: logger}
}

func (t *HoldTable) ListByDate(ctx context.Context, date schedule.Date) ([]reservation.Hold, error) {
	items, err := queryAll(ctx, t.client, &dynamodb.QueryInput{
		TableName:                aws.String(t.tableName),
		IndexName:                aws.String(DateIndex),
		KeyConditionExpression:   aws.String("#date = :date"),
		ExpressionAttributeNames: map[string]string{"#date": "date"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":date": &types.AttributeValueMemberS{Value: date.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: list holds: %w", err)
	}
	return decodeHolds(items)
}

func (t *HoldTable) FindBySlot(ctx context.Context, slot schedule.Slot) ([]reservation.Hold, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            slotKeyAttr(slot),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: find holds: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decodeHolds([]map[string]types.AttributeValue{out.Item})
}

func (t *HoldTable) FindByOwner(ctx context.Context, email string) ([]reservation.Hold, error) {
	items, err := queryAll(ctx, t.client, &dynamodb.QueryInput{
		TableName:              aws.String(t.tableName),
		IndexName:              aws.String(OwnerIndex),
		KeyConditionExpression: aws.String("ownerEmail = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: reservation.NormalizeEmail(email)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: find owned holds: %w", err)
	}
	return decodeHolds(items)
}

// Insert writes h only if the slot has no hold item at all.
func (t *HoldTable) Insert(ctx context.Context, h reservation.Hold) (reservation.Hold, error) {
	return t.put(ctx, h, "attribute_not_exists(slotKey)", nil)
}

// ClaimHoldSlot writes h unless another owner's item on the slot is still live.
func (t *HoldTable) ClaimHoldSlot(ctx context.Context, h reservation.Hold, now time.Time) (reservation.Hold, error) {
	return t.put(ctx, h,
		"attribute_not_exists(slotKey) OR expiresAt <= :now OR ownerEmail = :email",
		map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
			":email": &types.AttributeValueMemberS{Value: reservation.NormalizeEmail(h.Email)},
		},
	)
}

func (t *HoldTable) put(ctx context.Context, h reservation.Hold, condition string, values map[string]types.AttributeValue) (reservation.Hold, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.Email = reservation.NormalizeEmail(h.Email)
	item, err := attributevalue.MarshalMap(toHoldRecord(h))
	if err != nil {
		return reservation.Hold{}, fmt.Errorf("dynamo: failed to marshal hold: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(t.tableName),
		Item:                      item,
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return reservation.Hold{}, reservation.ErrSlotLocked
	}
	if err != nil {
		return reservation.Hold{}, fmt.Errorf("dynamo: failed to persist hold: %w", err)
	}
	return h, nil
}

// Delete removes the slot item if it is still this hold. An item that is gone
// or already replaced by a newer hold counts as deleted.
func (t *HoldTable) Delete(ctx context.Context, h reservation.Hold) error {
	_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(t.tableName),
		Key:                 slotKeyAttr(h.Slot()),
		ConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: h.ID},
		},
	})
	if isConditionFailed(err) {
		t.logger.Debug("hold already gone", "hold_id", h.ID, "slot", h.Slot().String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("dynamo: delete hold: %w", err)
	}
	return nil
}

func decodeHolds(items []map[string]types.AttributeValue) ([]reservation.Hold, error) {
	out := make([]reservation.Hold, 0, len(items))
	for _, item := range items {
		var rec holdRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("dynamo: failed to unmarshal hold: %w", err)
		}
		h, err := rec.hold()
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode hold %s: %w", rec.ID, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// queryAll follows LastEvaluatedKey until the result set is exhausted.
func queryAll(ctx context.Context, client dynamoAPI, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
