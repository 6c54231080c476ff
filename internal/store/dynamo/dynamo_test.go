package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type mockDynamo struct {
	putInputs      []*dynamodb.PutItemInput
	deleteInputs   []*dynamodb.DeleteItemInput
	queryInputs    []*dynamodb.QueryInput
	transactInputs []*dynamodb.TransactWriteItemsInput

	putErr      error
	deleteErr   error
	transactErr error
	getItem     map[string]types.AttributeValue
	queryPages  []*dynamodb.QueryOutput
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.getItem}, nil
}

func (m *mockDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.deleteInputs = append(m.deleteInputs, in)
	return &dynamodb.DeleteItemOutput{}, m.deleteErr
}

func (m *mockDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	copied := *in
	m.queryInputs = append(m.queryInputs, &copied)
	if len(m.queryPages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := m.queryPages[0]
	m.queryPages = m.queryPages[1:]
	return page, nil
}

func (m *mockDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	m.transactInputs = append(m.transactInputs, in)
	return &dynamodb.TransactWriteItemsOutput{}, m.transactErr
}

var (
	monday = schedule.Date{Year: 2026, Month: time.October, Day: 19}
	now    = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)
)

func sampleBooking() reservation.Booking {
	return reservation.Booking{
		ID: "b-1", Email: "alice@example.com", Name: "Alice", ServiceRef: "facial",
		Date: monday, Time: schedule.At(14), Price: 1000, Deposit: 500, CreatedAt: now,
	}
}

func sampleHold() reservation.Hold {
	return reservation.Hold{
		ID: "h-1", Email: "alice@example.com", ServiceRef: "facial",
		Date: monday, Time: schedule.At(14), ExpiresAt: now.Add(10 * time.Minute),
	}
}

func mustMarshal(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func TestBookingClaimUsesSlotCondition(t *testing.T) {
	mock := &mockDynamo{}
	table := NewBookingTable(mock, "appointments", logging.Discard())

	stored, err := table.ClaimBookingSlot(context.Background(), sampleBooking())
	require.NoError(t, err)
	assert.Equal(t, sampleBooking(), stored)

	require.Len(t, mock.putInputs, 1)
	put := mock.putInputs[0]
	assert.Equal(t, "attribute_not_exists(slotKey)", aws.ToString(put.ConditionExpression))

	var rec bookingRecord
	require.NoError(t, attributevalue.UnmarshalMap(put.Item, &rec))
	assert.Equal(t, "2026-10-19#14:00", rec.SlotKey)
	assert.False(t, rec.RescheduledOnce)
}

func TestBookingClaimConditionFailed(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	table := NewBookingTable(mock, "appointments", logging.Discard())

	_, err := table.Insert(context.Background(), sampleBooking())
	if !errors.Is(err, reservation.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBookingFindBySlotRoundTrip(t *testing.T) {
	mock := &mockDynamo{getItem: mustMarshal(t, toBookingRecord(sampleBooking()))}
	table := NewBookingTable(mock, "appointments", logging.Discard())

	got, err := table.FindBySlot(context.Background(), sampleBooking().Slot())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sampleBooking(), got[0])

	mock.getItem = nil
	got, err = table.FindBySlot(context.Background(), sampleBooking().Slot())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBookingGetNotFound(t *testing.T) {
	table := NewBookingTable(&mockDynamo{}, "appointments", logging.Discard())
	_, err := table.Get(context.Background(), "missing")
	if !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingListByDateFollowsPages(t *testing.T) {
	first := sampleBooking()
	second := sampleBooking()
	second.ID, second.Time = "b-2", schedule.At(15)
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{mustMarshal(t, toBookingRecord(first))},
			LastEvaluatedKey: map[string]types.AttributeValue{"slotKey": &types.AttributeValueMemberS{Value: first.Slot().Key()}},
		},
		{Items: []map[string]types.AttributeValue{mustMarshal(t, toBookingRecord(second))}},
	}}
	table := NewBookingTable(mock, "appointments", logging.Discard())

	got, err := table.ListByDate(context.Background(), monday)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, mock.queryInputs, 2)
	assert.Equal(t, DateIndex, aws.ToString(mock.queryInputs[0].IndexName))
	assert.NotNil(t, mock.queryInputs[1].ExclusiveStartKey)
}

func TestBookingRescheduleTransaction(t *testing.T) {
	mock := &mockDynamo{}
	table := NewBookingTable(mock, "appointments", logging.Discard())
	to := schedule.Slot{Date: monday, Time: schedule.At(16)}

	moved, err := table.Reschedule(context.Background(), sampleBooking(), to)
	require.NoError(t, err)
	assert.True(t, moved.RescheduledOnce)
	assert.Equal(t, to, moved.Slot())

	require.Len(t, mock.transactInputs, 1)
	items := mock.transactInputs[0].TransactItems
	require.Len(t, items, 2)
	assert.Equal(t, "attribute_not_exists(slotKey)", aws.ToString(items[0].Put.ConditionExpression))
	oldKey := items[1].Delete.Key["slotKey"].(*types.AttributeValueMemberS).Value
	assert.Equal(t, "2026-10-19#14:00", oldKey)
}

func TestBookingRescheduleCancellationReasons(t *testing.T) {
	to := schedule.Slot{Date: monday, Time: schedule.At(16)}
	taken := &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
		{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")},
	}}
	table := NewBookingTable(&mockDynamo{transactErr: taken}, "appointments", logging.Discard())
	_, err := table.Reschedule(context.Background(), sampleBooking(), to)
	if !errors.Is(err, reservation.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	flagged := sampleBooking()
	flagged.RescheduledOnce = true
	spent := &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
		{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")},
	}}
	mock := &mockDynamo{transactErr: spent, queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{mustMarshal(t, toBookingRecord(flagged))}},
	}}
	table = NewBookingTable(mock, "appointments", logging.Discard())
	_, err = table.Reschedule(context.Background(), sampleBooking(), to)
	if !errors.Is(err, reservation.ErrAlreadyRescheduled) {
		t.Fatalf("expected ErrAlreadyRescheduled, got %v", err)
	}
	assert.Equal(t, IDIndex, aws.ToString(mock.queryInputs[0].IndexName))
}

func TestHoldClaimCondition(t *testing.T) {
	mock := &mockDynamo{}
	table := NewHoldTable(mock, "pendingBookings", logging.Discard())

	h := sampleHold()
	h.Email = "Alice@Example.com"
	stored, err := table.ClaimHoldSlot(context.Background(), h, now)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)

	put := mock.putInputs[0]
	assert.Equal(t, "attribute_not_exists(slotKey) OR expiresAt <= :now OR ownerEmail = :email", aws.ToString(put.ConditionExpression))
	assert.Equal(t, "1791968400000", put.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value)

	var rec holdRecord
	require.NoError(t, attributevalue.UnmarshalMap(put.Item, &rec))
	decoded, err := rec.hold()
	require.NoError(t, err)
	assert.Equal(t, sampleHold(), decoded)
}

func TestHoldClaimLocked(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	table := NewHoldTable(mock, "pendingBookings", logging.Discard())

	_, err := table.ClaimHoldSlot(context.Background(), sampleHold(), now)
	if !errors.Is(err, reservation.ErrSlotLocked) {
		t.Fatalf("expected ErrSlotLocked, got %v", err)
	}
}

func TestHoldDeleteIsIdempotent(t *testing.T) {
	mock := &mockDynamo{deleteErr: &types.ConditionalCheckFailedException{}}
	table := NewHoldTable(mock, "pendingBookings", logging.Discard())

	require.NoError(t, table.Delete(context.Background(), sampleHold()))
	del := mock.deleteInputs[0]
	assert.Equal(t, "id = :id", aws.ToString(del.ConditionExpression))

	mock.deleteErr = errors.New("throttled")
	require.Error(t, table.Delete(context.Background(), sampleHold()))
}

func TestHoldFindByOwnerNormalizesEmail(t *testing.T) {
	mock := &mockDynamo{queryPages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{mustMarshal(t, toHoldRecord(sampleHold()))}},
	}}
	table := NewHoldTable(mock, "pendingBookings", logging.Discard())

	holds, err := table.FindByOwner(context.Background(), " ALICE@example.com")
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, OwnerIndex, aws.ToString(mock.queryInputs[0].IndexName))
	email := mock.queryInputs[0].ExpressionAttributeValues[":email"].(*types.AttributeValueMemberS).Value
	assert.Equal(t, "alice@example.com", email)
}
