package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"insurance-bot/internal/domain"
)

type fakeDynamo struct {
	items     map[string]map[string]types.AttributeValue
	getErr    error
	putErr    error
	deleteErr error
	lastGet   *dynamodb.GetItemInput
	lastPut   *dynamodb.PutItemInput
	lastDel   *dynamodb.DeleteItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pkOf(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func itemKey(key map[string]types.AttributeValue) string {
	sk := ""
	if v, ok := key["SK"].(*types.AttributeValueMemberS); ok {
		sk = v.Value
	}
	return pkOf(key) + "|" + sk
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	k := itemKey(in.Item)
	if in.ConditionExpression != nil {
		if _, exists := f.items[k]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional check failed")}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDel = in
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func mustNewClient(t *testing.T, db *fakeDynamo, now time.Time) *Client {
	t.Helper()
	c, err := New(db, "sessions", time.Hour)
	require.NoError(t, err)
	c.now = func() time.Time { return now }
	return c
}

func sampleRecord() *domain.ConversationRecord {
	rec := domain.NewConversationRecord("chat-42", 42)
	rec.Stage = domain.StageAwaitingVehicleConfirm
	rec.Identity = &domain.IdentityData{Surname: "Іванов", GivenName: "Іван", DocumentNumber: "КМ123456"}
	rec.Vehicle = &domain.VehicleData{RegistrationNumber: "АА1234ВВ", InsuranceDetails: []string{"a", "b"}}
	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "sessions", time.Hour)
	require.ErrorContains(t, err, "api must not be nil")

	_, err = New(newFakeDynamo(), " ", time.Hour)
	require.ErrorContains(t, err, "table name")

	c, err := New(newFakeDynamo(), "sessions", 0)
	require.NoError(t, err)
	require.Equal(t, defaultSessionTTL, c.ttl)
}

func TestSaveThenGet_RoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := newFakeDynamo()
	c := mustNewClient(t, db, now)

	require.NoError(t, c.Save(context.Background(), sampleRecord()))

	require.Equal(t, "sessions", *db.lastPut.TableName)
	item := db.lastPut.Item
	require.Equal(t, "SESSION#chat-42", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skState, item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "awaiting_vehicle_confirm", item["stage"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, strconv.FormatInt(now.Add(time.Hour).Unix(), 10), item["ttl"].(*types.AttributeValueMemberN).Value)

	got, err := c.Get(context.Background(), "chat-42")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, *db.lastGet.ConsistentRead)
	require.Equal(t, domain.StageAwaitingVehicleConfirm, got.Stage)
	require.Equal(t, int64(42), got.ChatID)
	require.Equal(t, "Іванов", got.Identity.Surname)
	require.Equal(t, []string{"a", "b"}, got.Vehicle.InsuranceDetails)
	require.True(t, now.Equal(got.UpdatedAt))
}

func TestGet_Missing(t *testing.T) {
	c := mustNewClient(t, newFakeDynamo(), time.Now())
	got, err := c.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGet_ExpiredItemIsAbsent(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := newFakeDynamo()
	c := mustNewClient(t, db, now)
	require.NoError(t, c.Save(context.Background(), sampleRecord()))

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	got, err := c.Get(context.Background(), "chat-42")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGet_Errors(t *testing.T) {
	db := newFakeDynamo()
	db.getErr = errors.New("boom")
	c := mustNewClient(t, db, time.Now())

	_, err := c.Get(context.Background(), "chat-42")
	require.ErrorContains(t, err, "boom")

	_, err = c.Get(context.Background(), " ")
	require.ErrorContains(t, err, "session id is required")
}

func TestGet_MalformedRecord(t *testing.T) {
	db := newFakeDynamo()
	db.items["SESSION#chat-42|"+skState] = map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: "SESSION#chat-42"},
		"SK":     &types.AttributeValueMemberS{Value: skState},
		"record": &types.AttributeValueMemberS{Value: "{broken"},
	}
	c := mustNewClient(t, db, time.Now())
	_, err := c.Get(context.Background(), "chat-42")
	require.ErrorContains(t, err, "decode")
}

func TestSave_Errors(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db, time.Now())

	require.ErrorContains(t, c.Save(context.Background(), nil), "session id is required")

	db.putErr = errors.New("throttled")
	require.ErrorContains(t, c.Save(context.Background(), sampleRecord()), "throttled")
}

func TestDelete(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db, time.Now())
	require.NoError(t, c.Save(context.Background(), sampleRecord()))

	require.NoError(t, c.Delete(context.Background(), "chat-42"))
	require.Equal(t, "SESSION#chat-42", pkOf(db.lastDel.Key))
	got, err := c.Get(context.Background(), "chat-42")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, c.Delete(context.Background(), "chat-42"))

	db.deleteErr = errors.New("boom")
	require.ErrorContains(t, c.Delete(context.Background(), "chat-42"), "Delete")
}

func TestClaim_SecondDeliveryIsRejected(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := newFakeDynamo()
	c := mustNewClient(t, db, now)
	ctx := context.Background()
	require.NoError(t, c.Save(ctx, sampleRecord()))

	ok, err := c.Claim(ctx, "chat-42", 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "attribute_not_exists(PK)", *db.lastPut.ConditionExpression)
	require.Equal(t, "UPDATE#7", db.lastPut.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, strconv.FormatInt(now.Add(time.Hour).Unix(), 10), db.lastPut.Item["ttl"].(*types.AttributeValueMemberN).Value)

	ok, err = c.Claim(ctx, "chat-42", 7)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.Claim(ctx, "chat-42", 8)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := c.Get(ctx, "chat-42")
	require.NoError(t, err)
	require.Equal(t, domain.StageAwaitingVehicleConfirm, got.Stage)
}

func TestClaim_Errors(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db, time.Now())

	_, err := c.Claim(context.Background(), " ", 1)
	require.ErrorContains(t, err, "session id is required")

	db.putErr = errors.New("throttled")
	_, err = c.Claim(context.Background(), "chat-42", 1)
	require.ErrorContains(t, err, "throttled")
}

func TestIntAttr(t *testing.T) {
	item := map[string]types.AttributeValue{
		"n":   &types.AttributeValueMemberN{Value: "12"},
		"s":   &types.AttributeValueMemberS{Value: "12"},
		"bad": &types.AttributeValueMemberN{Value: "x"},
	}
	n, err := intAttr(item, "n")
	require.NoError(t, err)
	require.Equal(t, 12, n)

	_, err = intAttr(item, "s")
	require.ErrorContains(t, err, "not a number")
	_, err = intAttr(item, "bad")
	require.ErrorContains(t, err, "parse")
	_, err = intAttr(item, "missing")
	require.ErrorContains(t, err, "missing")
}
